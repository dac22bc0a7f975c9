package domain

// Transformation is a data-flow design: steps connected by hops
type Transformation struct {
	ID                  ObjectID      `json:"id"`
	Name                string        `json:"name"`
	DirectoryPath       string        `json:"directory"`
	Description         string        `json:"description,omitempty"`
	ExtendedDescription string        `json:"extended_description,omitempty"`
	Audit               Audit         `json:"audit"`
	Attributes          *AttributeSet `json:"attributes,omitempty"`

	Steps        []*Step       `json:"steps,omitempty"`
	Hops         []*TransHop   `json:"hops,omitempty"`
	Notes        []*Note       `json:"notes,omitempty"`
	Dependencies []*Dependency `json:"dependencies,omitempty"`

	// Shared objects referenced by this transformation
	Databases        []*DatabaseConnection `json:"databases,omitempty"`
	SlaveServers     []*SlaveServer        `json:"slave_servers,omitempty"`
	ClusterSchemas   []*ClusterSchema      `json:"cluster_schemas,omitempty"`
	PartitionSchemas []*PartitionSchema    `json:"partition_schemas,omitempty"`
}

// NewTransformation creates an empty transformation in the given directory
func NewTransformation(name, directory string) *Transformation {
	return &Transformation{
		Name:          name,
		DirectoryPath: CleanPath(directory),
		Attributes:    NewAttributeSet(),
	}
}

func (t *Transformation) Kind() Kind               { return KindTransformation }
func (t *Transformation) ObjectID() ObjectID       { return t.ID }
func (t *Transformation) SetObjectID(id ObjectID)  { t.ID = id }
func (t *Transformation) ObjectName() string       { return t.Name }
func (t *Transformation) Directory() string        { return t.DirectoryPath }
func (t *Transformation) SetDirectory(path string) { t.DirectoryPath = CleanPath(path) }
func (t *Transformation) AuditInfo() *Audit        { return &t.Audit }

// Step returns the step with the given name
func (t *Transformation) Step(name string) *Step {
	s, _ := findByName(t.Steps, name, func(s *Step) string { return s.Name })
	return s
}

// Database returns the referenced connection with the given name
func (t *Transformation) Database(name string) *DatabaseConnection {
	d, _ := findByName(t.Databases, name, func(d *DatabaseConnection) string { return d.Name })
	return d
}

// SharedObjects returns every shared object the transformation references
func (t *Transformation) SharedObjects() []SharedObject {
	var out []SharedObject
	for _, d := range t.Databases {
		out = append(out, d)
	}
	for _, s := range t.SlaveServers {
		out = append(out, s)
	}
	for _, c := range t.ClusterSchemas {
		out = append(out, c)
	}
	for _, p := range t.PartitionSchemas {
		out = append(out, p)
	}
	return out
}

// References returns the object references of all steps
func (t *Transformation) References() []*ObjectReference {
	var refs []*ObjectReference
	for _, s := range t.Steps {
		for i := range s.References {
			refs = append(refs, &s.References[i])
		}
	}
	return refs
}

// Step is one processing node of a transformation. Plugin configuration
// lives in Attributes.
type Step struct {
	ID              ObjectID          `json:"id"`
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	Description     string            `json:"description,omitempty"`
	Distribute      bool              `json:"distribute"`
	Copies          int               `json:"copies"`
	X               int               `json:"x"`
	Y               int               `json:"y"`
	Draw            bool              `json:"draw"`
	Attributes      *AttributeSet     `json:"attributes,omitempty"`
	Databases       []string          `json:"databases,omitempty"`
	ClusterSchema   string            `json:"cluster_schema,omitempty"`
	PartitionSchema string            `json:"partition_schema,omitempty"`
	Condition       *Condition        `json:"condition,omitempty"`
	References      []ObjectReference `json:"references,omitempty"`
}

// NewStep creates a step with one copy and an empty attribute set
func NewStep(name, stepType string) *Step {
	return &Step{
		Name:       name,
		Type:       stepType,
		Copies:     1,
		Draw:       true,
		Distribute: true,
		Attributes: NewAttributeSet(),
	}
}

// TransHop connects two steps by name
type TransHop struct {
	ID      ObjectID `json:"id"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Enabled bool     `json:"enabled"`
}

// Dependency records a table or field a transformation depends on
type Dependency struct {
	ID       ObjectID `json:"id"`
	Database string   `json:"database"`
	Table    string   `json:"table"`
	Field    string   `json:"field"`
}
