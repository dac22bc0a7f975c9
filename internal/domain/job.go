package domain

// Job is a control-flow design: entries connected by conditional hops
type Job struct {
	ID                  ObjectID      `json:"id"`
	Name                string        `json:"name"`
	DirectoryPath       string        `json:"directory"`
	Description         string        `json:"description,omitempty"`
	ExtendedDescription string        `json:"extended_description,omitempty"`
	Audit               Audit         `json:"audit"`
	Attributes          *AttributeSet `json:"attributes,omitempty"`

	Entries []*JobEntry `json:"entries,omitempty"`
	Hops    []*JobHop   `json:"hops,omitempty"`
	Notes   []*Note     `json:"notes,omitempty"`

	Databases    []*DatabaseConnection `json:"databases,omitempty"`
	SlaveServers []*SlaveServer        `json:"slave_servers,omitempty"`
}

// NewJob creates an empty job in the given directory
func NewJob(name, directory string) *Job {
	return &Job{
		Name:          name,
		DirectoryPath: CleanPath(directory),
		Attributes:    NewAttributeSet(),
	}
}

func (j *Job) Kind() Kind               { return KindJob }
func (j *Job) ObjectID() ObjectID       { return j.ID }
func (j *Job) SetObjectID(id ObjectID)  { j.ID = id }
func (j *Job) ObjectName() string       { return j.Name }
func (j *Job) Directory() string        { return j.DirectoryPath }
func (j *Job) SetDirectory(path string) { j.DirectoryPath = CleanPath(path) }
func (j *Job) AuditInfo() *Audit        { return &j.Audit }

// Entry returns the entry with the given name
func (j *Job) Entry(name string) *JobEntry {
	e, _ := findByName(j.Entries, name, func(e *JobEntry) string { return e.Name })
	return e
}

// Database returns the referenced connection with the given name
func (j *Job) Database(name string) *DatabaseConnection {
	d, _ := findByName(j.Databases, name, func(d *DatabaseConnection) string { return d.Name })
	return d
}

// SharedObjects returns every shared object the job references
func (j *Job) SharedObjects() []SharedObject {
	var out []SharedObject
	for _, d := range j.Databases {
		out = append(out, d)
	}
	for _, s := range j.SlaveServers {
		out = append(out, s)
	}
	return out
}

// References returns the object references of all entries
func (j *Job) References() []*ObjectReference {
	var refs []*ObjectReference
	for _, e := range j.Entries {
		for i := range e.References {
			refs = append(refs, &e.References[i])
		}
	}
	return refs
}

// JobEntry is one task of a job
type JobEntry struct {
	ID          ObjectID          `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	X           int               `json:"x"`
	Y           int               `json:"y"`
	Attributes  *AttributeSet     `json:"attributes,omitempty"`
	Databases   []string          `json:"databases,omitempty"`
	References  []ObjectReference `json:"references,omitempty"`
}

// NewJobEntry creates an entry with an empty attribute set
func NewJobEntry(name, entryType string) *JobEntry {
	return &JobEntry{Name: name, Type: entryType, Attributes: NewAttributeSet()}
}

// JobHop connects two job entries by name
type JobHop struct {
	ID            ObjectID `json:"id"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Enabled       bool     `json:"enabled"`
	Evaluation    bool     `json:"evaluation"`
	Unconditional bool     `json:"unconditional"`
}
