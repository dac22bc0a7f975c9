package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"etlrepo/internal/domain"
)

// TimeLayout is the timestamp format of audit fields in exported fragments
const TimeLayout = "2006/01/02 15:04:05.000"

// XMLCodec encodes and decodes transformation and job fragments. A
// fragment is one self-contained <transformation> or <job> element.
type XMLCodec struct {
	prefix string
}

// NewXMLCodec creates a new XML fragment codec
func NewXMLCodec() *XMLCodec {
	return &XMLCodec{}
}

// Format returns the codec format identifier
func (c *XMLCodec) Format() string {
	return "xml"
}

// Encode writes obj as a single fragment
func (c *XMLCodec) Encode(obj domain.DirectoryObject, w io.Writer) error {
	var v any
	switch o := obj.(type) {
	case *domain.Transformation:
		v = toXMLTransformation(o)
	case *domain.Job:
		v = toXMLJob(o)
	default:
		return &EncodeError{Kind: obj.Kind(), Name: obj.ObjectName(), Err: fmt.Errorf("cannot encode %s as a fragment", obj.Kind())}
	}
	// encoding/xml replaces characters XML cannot carry without reporting it
	if err := checkText(reflect.ValueOf(v), ""); err != nil {
		return &EncodeError{Kind: obj.Kind(), Name: obj.ObjectName(), Err: err}
	}

	enc := xml.NewEncoder(w)
	enc.Indent(c.prefix, "  ")
	if err := enc.Encode(v); err != nil {
		return &EncodeError{Kind: obj.Kind(), Name: obj.ObjectName(), Err: err}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return nil
}

// checkText walks every string reachable from v and fails on the first
// character outside the XML 1.0 character range.
func checkText(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkText(v.Elem(), path)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := checkText(v.Field(i), joinPath(path, t.Field(i).Name)); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkText(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.String:
		s := v.String()
		for i := 0; i < len(s); {
			r, size := utf8.DecodeRuneInString(s[i:])
			if (r == utf8.RuneError && size == 1) || !isXMLChar(r) {
				return fmt.Errorf("%s: character %U at offset %d cannot be represented in XML", path, r, i)
			}
			i += size
		}
	}
	return nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

func isXMLChar(r rune) bool {
	return r == '\t' || r == '\n' || r == '\r' ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

// Decode parses a fragment into a transformation or a job depending on its
// root element.
func (c *XMLCodec) Decode(data []byte) (domain.DirectoryObject, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}
	switch root {
	case "transformation":
		t, err := c.DecodeTransformation(data)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "job":
		j, err := c.DecodeJob(data)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
	return nil, fmt.Errorf("unexpected fragment root <%s>", root)
}

// DecodeTransformation parses a <transformation> fragment
func (c *XMLCodec) DecodeTransformation(data []byte) (*domain.Transformation, error) {
	var x xmlTransformation
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("failed to parse transformation: %w", err)
	}
	return x.toDomain()
}

// DecodeJob parses a <job> fragment
func (c *XMLCodec) DecodeJob(data []byte) (*domain.Job, error) {
	var x xmlJob
	if err := xml.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	return x.toDomain()
}

func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			return "", errors.New("empty fragment")
		}
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

// yesNo is a boolean written as Y or N
type yesNo bool

func (b yesNo) MarshalText() ([]byte, error) {
	if b {
		return []byte("Y"), nil
	}
	return []byte("N"), nil
}

func (b *yesNo) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	*b = yesNo(strings.EqualFold(s, "Y") || strings.EqualFold(s, "true") || s == "1")
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

type xmlAttribute struct {
	Code  string `xml:"code,attr"`
	Nr    int    `xml:"nr,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

func encodeAttributes(set *domain.AttributeSet) []xmlAttribute {
	records := set.Records(0)
	if len(records) == 0 {
		return nil
	}
	out := make([]xmlAttribute, 0, len(records))
	for _, r := range records {
		out = append(out, xmlAttribute{
			Code:  r.Code,
			Nr:    r.Index,
			Type:  r.Value.Type().String(),
			Value: r.Value.String(),
		})
	}
	return out
}

func decodeAttributes(attrs []xmlAttribute) (*domain.AttributeSet, error) {
	set := domain.NewAttributeSet()
	for _, a := range attrs {
		if a.Code == "" {
			return nil, errors.New("attribute without code")
		}
		typ, err := domain.ParseAttributeType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Code, err)
		}
		v, err := domain.ParseAttributeValue(typ, a.Value)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Code, err)
		}
		set.Set(a.Code, a.Nr, v)
	}
	return set, nil
}

type xmlReference struct {
	Kind      string `xml:"kind,attr"`
	Directory string `xml:"directory,attr"`
	Name      string `xml:",chardata"`
}

func encodeReferences(refs []domain.ObjectReference) []xmlReference {
	var out []xmlReference
	for _, ref := range refs {
		out = append(out, xmlReference{Kind: ref.Kind.String(), Directory: ref.Directory, Name: ref.Name})
	}
	return out
}

func decodeReferences(refs []xmlReference) ([]domain.ObjectReference, error) {
	var out []domain.ObjectReference
	for _, ref := range refs {
		kind, err := domain.ParseKind(ref.Kind)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", ref.Name, err)
		}
		if !kind.IsTopLevel() {
			return nil, fmt.Errorf("reference %s: %s cannot be referenced", ref.Name, kind)
		}
		out = append(out, domain.ObjectReference{Kind: kind, Name: ref.Name, Directory: domain.CleanPath(ref.Directory)})
	}
	return out, nil
}

type xmlNote struct {
	Text   string `xml:"note"`
	X      int    `xml:"xloc"`
	Y      int    `xml:"yloc"`
	Width  int    `xml:"width"`
	Height int    `xml:"heigth"`
}

func encodeNotes(notes []*domain.Note) []xmlNote {
	var out []xmlNote
	for _, n := range notes {
		out = append(out, xmlNote{Text: n.Text, X: n.X, Y: n.Y, Width: n.Width, Height: n.Height})
	}
	return out
}

func decodeNotes(notes []xmlNote) []*domain.Note {
	var out []*domain.Note
	for _, n := range notes {
		out = append(out, &domain.Note{Text: n.Text, X: n.X, Y: n.Y, Width: n.Width, Height: n.Height})
	}
	return out
}

type xmlConnection struct {
	Name            string         `xml:"name"`
	Server          string         `xml:"server,omitempty"`
	Type            string         `xml:"type,omitempty"`
	Access          string         `xml:"access,omitempty"`
	Database        string         `xml:"database,omitempty"`
	Port            string         `xml:"port,omitempty"`
	Username        string         `xml:"username,omitempty"`
	Password        string         `xml:"password,omitempty"`
	Servername      string         `xml:"servername,omitempty"`
	DataTablespace  string         `xml:"data_tablespace,omitempty"`
	IndexTablespace string         `xml:"index_tablespace,omitempty"`
	Attributes      []xmlAttribute `xml:"attributes>attribute"`
}

func encodeConnections(dbs []*domain.DatabaseConnection) []xmlConnection {
	var out []xmlConnection
	for _, d := range dbs {
		out = append(out, xmlConnection{
			Name:            d.Name,
			Server:          d.Host,
			Type:            d.Type,
			Access:          d.Access,
			Database:        d.DatabaseName,
			Port:            d.Port,
			Username:        d.Username,
			Password:        d.Password,
			Servername:      d.Servername,
			DataTablespace:  d.DataTBS,
			IndexTablespace: d.IndexTBS,
			Attributes:      encodeAttributes(d.Attributes),
		})
	}
	return out
}

func decodeConnections(conns []xmlConnection) ([]*domain.DatabaseConnection, error) {
	var out []*domain.DatabaseConnection
	for _, c := range conns {
		if c.Name == "" {
			return nil, errors.New("connection without name")
		}
		attrs, err := decodeAttributes(c.Attributes)
		if err != nil {
			return nil, fmt.Errorf("connection %s: %w", c.Name, err)
		}
		out = append(out, &domain.DatabaseConnection{
			Name:         c.Name,
			Type:         c.Type,
			Access:       c.Access,
			Host:         c.Server,
			DatabaseName: c.Database,
			Port:         c.Port,
			Username:     c.Username,
			Password:     c.Password,
			Servername:   c.Servername,
			DataTBS:      c.DataTablespace,
			IndexTBS:     c.IndexTablespace,
			Attributes:   attrs,
		})
	}
	return out, nil
}

type xmlSlaveServer struct {
	Name          string `xml:"name"`
	Hostname      string `xml:"hostname"`
	Port          string `xml:"port,omitempty"`
	WebAppName    string `xml:"webAppName,omitempty"`
	Username      string `xml:"username,omitempty"`
	Password      string `xml:"password,omitempty"`
	ProxyHostname string `xml:"proxy_hostname,omitempty"`
	ProxyPort     string `xml:"proxy_port,omitempty"`
	NonProxyHosts string `xml:"non_proxy_hosts,omitempty"`
	Master        yesNo  `xml:"master"`
}

func encodeSlaveServers(slaves []*domain.SlaveServer) []xmlSlaveServer {
	var out []xmlSlaveServer
	for _, s := range slaves {
		out = append(out, xmlSlaveServer{
			Name:          s.Name,
			Hostname:      s.Host,
			Port:          s.Port,
			WebAppName:    s.WebAppName,
			Username:      s.Username,
			Password:      s.Password,
			ProxyHostname: s.ProxyHost,
			ProxyPort:     s.ProxyPort,
			NonProxyHosts: s.NonProxyHosts,
			Master:        yesNo(s.Master),
		})
	}
	return out
}

func decodeSlaveServers(slaves []xmlSlaveServer) ([]*domain.SlaveServer, error) {
	var out []*domain.SlaveServer
	for _, s := range slaves {
		if s.Name == "" {
			return nil, errors.New("slave server without name")
		}
		out = append(out, &domain.SlaveServer{
			Name:          s.Name,
			Host:          s.Hostname,
			Port:          s.Port,
			WebAppName:    s.WebAppName,
			Username:      s.Username,
			Password:      s.Password,
			ProxyHost:     s.ProxyHostname,
			ProxyPort:     s.ProxyPort,
			NonProxyHosts: s.NonProxyHosts,
			Master:        bool(s.Master),
		})
	}
	return out, nil
}

type xmlClusterSchema struct {
	Name                 string   `xml:"name"`
	BasePort             string   `xml:"base_port,omitempty"`
	SocketsBufferSize    string   `xml:"sockets_buffer_size,omitempty"`
	SocketsFlushInterval string   `xml:"sockets_flush_interval,omitempty"`
	SocketsCompressed    yesNo    `xml:"sockets_compressed"`
	Dynamic              yesNo    `xml:"dynamic"`
	SlaveServers         []string `xml:"slaveservers>name"`
}

type xmlPartitionSchema struct {
	Name               string   `xml:"name"`
	Partitions         []string `xml:"partition>id"`
	Dynamic            yesNo    `xml:"dynamic"`
	PartitionsPerSlave string   `xml:"partitions_per_slave,omitempty"`
}

type xmlInfo struct {
	Name                string `xml:"name"`
	Directory           string `xml:"directory"`
	Description         string `xml:"description,omitempty"`
	ExtendedDescription string `xml:"extended_description,omitempty"`
	CreatedUser         string `xml:"created_user,omitempty"`
	CreatedDate         string `xml:"created_date,omitempty"`
	ModifiedUser        string `xml:"modified_user,omitempty"`
	ModifiedDate        string `xml:"modified_date,omitempty"`
}

func encodeInfo(obj domain.DirectoryObject, description, extended string) xmlInfo {
	audit := obj.AuditInfo()
	return xmlInfo{
		Name:                obj.ObjectName(),
		Directory:           obj.Directory(),
		Description:         description,
		ExtendedDescription: extended,
		CreatedUser:         audit.CreatedUser,
		CreatedDate:         formatTime(audit.CreatedDate),
		ModifiedUser:        audit.ModifiedUser,
		ModifiedDate:        formatTime(audit.ModifiedDate),
	}
}

func (i xmlInfo) audit() (domain.Audit, error) {
	created, err := parseTime(i.CreatedDate)
	if err != nil {
		return domain.Audit{}, err
	}
	modified, err := parseTime(i.ModifiedDate)
	if err != nil {
		return domain.Audit{}, err
	}
	return domain.Audit{
		CreatedUser:  i.CreatedUser,
		CreatedDate:  created,
		ModifiedUser: i.ModifiedUser,
		ModifiedDate: modified,
	}, nil
}

type xmlCondition struct {
	Negated    yesNo           `xml:"negated"`
	Operator   string          `xml:"operator,omitempty"`
	LeftValue  string          `xml:"leftvalue,omitempty"`
	Function   string          `xml:"function,omitempty"`
	RightValue string          `xml:"rightvalue,omitempty"`
	Value      string          `xml:"value,omitempty"`
	Conditions []*xmlCondition `xml:"conditions>condition"`
}

func encodeCondition(c *domain.Condition) *xmlCondition {
	if c == nil {
		return nil
	}
	x := &xmlCondition{
		Negated:    yesNo(c.Negate),
		Operator:   c.Operator,
		LeftValue:  c.LeftField,
		Function:   c.Function,
		RightValue: c.RightField,
		Value:      c.Value,
	}
	for _, child := range c.Children {
		x.Conditions = append(x.Conditions, encodeCondition(child))
	}
	return x
}

func (x *xmlCondition) toDomain() *domain.Condition {
	if x == nil {
		return nil
	}
	c := &domain.Condition{
		Negate:     bool(x.Negated),
		Operator:   x.Operator,
		LeftField:  x.LeftValue,
		Function:   x.Function,
		RightField: x.RightValue,
		Value:      x.Value,
	}
	for _, child := range x.Conditions {
		c.Children = append(c.Children, child.toDomain())
	}
	return c
}

type xmlGUI struct {
	X    int   `xml:"xloc"`
	Y    int   `xml:"yloc"`
	Draw yesNo `xml:"draw"`
}

type xmlStep struct {
	Name            string         `xml:"name"`
	Type            string         `xml:"type"`
	Description     string         `xml:"description,omitempty"`
	Distribute      yesNo          `xml:"distribute"`
	Copies          int            `xml:"copies"`
	Connections     []string       `xml:"connection"`
	ClusterSchema   string         `xml:"cluster_schema,omitempty"`
	PartitionSchema string         `xml:"partitioning>schema_name,omitempty"`
	Attributes      []xmlAttribute `xml:"attributes>attribute"`
	Condition       *xmlCondition  `xml:"condition"`
	References      []xmlReference `xml:"reference"`
	GUI             xmlGUI         `xml:"GUI"`
}

type xmlTransHop struct {
	From    string `xml:"from"`
	To      string `xml:"to"`
	Enabled yesNo  `xml:"enabled"`
}

type xmlDependency struct {
	Connection string `xml:"connection"`
	Table      string `xml:"table"`
	Field      string `xml:"field,omitempty"`
}

type xmlTransformation struct {
	XMLName          xml.Name             `xml:"transformation"`
	Info             xmlInfo              `xml:"info"`
	Attributes       []xmlAttribute       `xml:"attributes>attribute"`
	Notes            []xmlNote            `xml:"notepads>notepad"`
	Connections      []xmlConnection      `xml:"connection"`
	Hops             []xmlTransHop        `xml:"order>hop"`
	Steps            []xmlStep            `xml:"step"`
	Dependencies     []xmlDependency      `xml:"dependencies>dependency"`
	SlaveServers     []xmlSlaveServer     `xml:"slaveservers>slaveserver"`
	ClusterSchemas   []xmlClusterSchema   `xml:"clusterschemas>clusterschema"`
	PartitionSchemas []xmlPartitionSchema `xml:"partitionschemas>partitionschema"`
}

func toXMLTransformation(t *domain.Transformation) *xmlTransformation {
	x := &xmlTransformation{
		Info:         encodeInfo(t, t.Description, t.ExtendedDescription),
		Attributes:   encodeAttributes(t.Attributes),
		Notes:        encodeNotes(t.Notes),
		Connections:  encodeConnections(t.Databases),
		SlaveServers: encodeSlaveServers(t.SlaveServers),
	}
	for _, h := range t.Hops {
		x.Hops = append(x.Hops, xmlTransHop{From: h.From, To: h.To, Enabled: yesNo(h.Enabled)})
	}
	for _, s := range t.Steps {
		x.Steps = append(x.Steps, xmlStep{
			Name:            s.Name,
			Type:            s.Type,
			Description:     s.Description,
			Distribute:      yesNo(s.Distribute),
			Copies:          s.Copies,
			Connections:     s.Databases,
			ClusterSchema:   s.ClusterSchema,
			PartitionSchema: s.PartitionSchema,
			Attributes:      encodeAttributes(s.Attributes),
			Condition:       encodeCondition(s.Condition),
			References:      encodeReferences(s.References),
			GUI:             xmlGUI{X: s.X, Y: s.Y, Draw: yesNo(s.Draw)},
		})
	}
	for _, d := range t.Dependencies {
		x.Dependencies = append(x.Dependencies, xmlDependency{Connection: d.Database, Table: d.Table, Field: d.Field})
	}
	for _, c := range t.ClusterSchemas {
		x.ClusterSchemas = append(x.ClusterSchemas, xmlClusterSchema{
			Name:                 c.Name,
			BasePort:             c.BasePort,
			SocketsBufferSize:    c.SocketsBufferSize,
			SocketsFlushInterval: c.SocketsFlushInterval,
			SocketsCompressed:    yesNo(c.SocketsCompressed),
			Dynamic:              yesNo(c.Dynamic),
			SlaveServers:         c.SlaveServers,
		})
	}
	for _, p := range t.PartitionSchemas {
		x.PartitionSchemas = append(x.PartitionSchemas, xmlPartitionSchema{
			Name:               p.Name,
			Partitions:         p.Partitions,
			Dynamic:            yesNo(p.Dynamic),
			PartitionsPerSlave: p.PartitionsPerSlave,
		})
	}
	return x
}

func (x *xmlTransformation) toDomain() (*domain.Transformation, error) {
	if strings.TrimSpace(x.Info.Name) == "" {
		return nil, errors.New("transformation without name")
	}
	t := domain.NewTransformation(x.Info.Name, x.Info.Directory)
	t.Description = x.Info.Description
	t.ExtendedDescription = x.Info.ExtendedDescription

	var err error
	if t.Audit, err = x.Info.audit(); err != nil {
		return nil, fmt.Errorf("transformation %s: %w", t.Name, err)
	}
	if t.Attributes, err = decodeAttributes(x.Attributes); err != nil {
		return nil, fmt.Errorf("transformation %s: %w", t.Name, err)
	}
	t.Notes = decodeNotes(x.Notes)
	if t.Databases, err = decodeConnections(x.Connections); err != nil {
		return nil, fmt.Errorf("transformation %s: %w", t.Name, err)
	}
	if t.SlaveServers, err = decodeSlaveServers(x.SlaveServers); err != nil {
		return nil, fmt.Errorf("transformation %s: %w", t.Name, err)
	}

	for _, xs := range x.Steps {
		if strings.TrimSpace(xs.Name) == "" {
			return nil, fmt.Errorf("transformation %s: step without name", t.Name)
		}
		s := domain.NewStep(xs.Name, xs.Type)
		s.Description = xs.Description
		s.Distribute = bool(xs.Distribute)
		if xs.Copies > 0 {
			s.Copies = xs.Copies
		}
		s.X, s.Y, s.Draw = xs.GUI.X, xs.GUI.Y, bool(xs.GUI.Draw)
		s.Databases = xs.Connections
		s.ClusterSchema = xs.ClusterSchema
		s.PartitionSchema = xs.PartitionSchema
		s.Condition = xs.Condition.toDomain()
		if s.Attributes, err = decodeAttributes(xs.Attributes); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
		if s.References, err = decodeReferences(xs.References); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
		t.Steps = append(t.Steps, s)
	}
	for _, h := range x.Hops {
		t.Hops = append(t.Hops, &domain.TransHop{From: h.From, To: h.To, Enabled: bool(h.Enabled)})
	}
	for _, d := range x.Dependencies {
		t.Dependencies = append(t.Dependencies, &domain.Dependency{Database: d.Connection, Table: d.Table, Field: d.Field})
	}
	for _, c := range x.ClusterSchemas {
		t.ClusterSchemas = append(t.ClusterSchemas, &domain.ClusterSchema{
			Name:                 c.Name,
			BasePort:             c.BasePort,
			SocketsBufferSize:    c.SocketsBufferSize,
			SocketsFlushInterval: c.SocketsFlushInterval,
			SocketsCompressed:    bool(c.SocketsCompressed),
			Dynamic:              bool(c.Dynamic),
			SlaveServers:         c.SlaveServers,
		})
	}
	for _, p := range x.PartitionSchemas {
		t.PartitionSchemas = append(t.PartitionSchemas, &domain.PartitionSchema{
			Name:               p.Name,
			Partitions:         p.Partitions,
			Dynamic:            bool(p.Dynamic),
			PartitionsPerSlave: p.PartitionsPerSlave,
		})
	}
	return t, nil
}

type xmlJobEntry struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description,omitempty"`
	Type        string         `xml:"type"`
	Connections []string       `xml:"connection"`
	Attributes  []xmlAttribute `xml:"attributes>attribute"`
	References  []xmlReference `xml:"reference"`
	X           int            `xml:"xloc"`
	Y           int            `xml:"yloc"`
}

type xmlJobHop struct {
	From          string `xml:"from"`
	To            string `xml:"to"`
	Enabled       yesNo  `xml:"enabled"`
	Evaluation    yesNo  `xml:"evaluation"`
	Unconditional yesNo  `xml:"unconditional"`
}

// xmlJob keeps the info fields inline, as job exports always have
type xmlJob struct {
	XMLName xml.Name `xml:"job"`
	xmlInfo
	Attributes   []xmlAttribute   `xml:"attributes>attribute"`
	Connections  []xmlConnection  `xml:"connection"`
	SlaveServers []xmlSlaveServer `xml:"slaveservers>slaveserver"`
	Entries      []xmlJobEntry    `xml:"entries>entry"`
	Hops         []xmlJobHop      `xml:"hops>hop"`
	Notes        []xmlNote        `xml:"notepads>notepad"`
}

func toXMLJob(j *domain.Job) *xmlJob {
	x := &xmlJob{
		xmlInfo:      encodeInfo(j, j.Description, j.ExtendedDescription),
		Attributes:   encodeAttributes(j.Attributes),
		Connections:  encodeConnections(j.Databases),
		SlaveServers: encodeSlaveServers(j.SlaveServers),
		Notes:        encodeNotes(j.Notes),
	}
	for _, e := range j.Entries {
		x.Entries = append(x.Entries, xmlJobEntry{
			Name:        e.Name,
			Description: e.Description,
			Type:        e.Type,
			Connections: e.Databases,
			Attributes:  encodeAttributes(e.Attributes),
			References:  encodeReferences(e.References),
			X:           e.X,
			Y:           e.Y,
		})
	}
	for _, h := range j.Hops {
		x.Hops = append(x.Hops, xmlJobHop{
			From:          h.From,
			To:            h.To,
			Enabled:       yesNo(h.Enabled),
			Evaluation:    yesNo(h.Evaluation),
			Unconditional: yesNo(h.Unconditional),
		})
	}
	return x
}

func (x *xmlJob) toDomain() (*domain.Job, error) {
	if strings.TrimSpace(x.Name) == "" {
		return nil, errors.New("job without name")
	}
	j := domain.NewJob(x.Name, x.Directory)
	j.Description = x.Description
	j.ExtendedDescription = x.ExtendedDescription

	var err error
	if j.Audit, err = x.audit(); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	if j.Attributes, err = decodeAttributes(x.Attributes); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	if j.Databases, err = decodeConnections(x.Connections); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	if j.SlaveServers, err = decodeSlaveServers(x.SlaveServers); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	j.Notes = decodeNotes(x.Notes)

	for _, xe := range x.Entries {
		if strings.TrimSpace(xe.Name) == "" {
			return nil, fmt.Errorf("job %s: entry without name", j.Name)
		}
		e := domain.NewJobEntry(xe.Name, xe.Type)
		e.Description = xe.Description
		e.X, e.Y = xe.X, xe.Y
		e.Databases = xe.Connections
		if e.Attributes, err = decodeAttributes(xe.Attributes); err != nil {
			return nil, fmt.Errorf("job entry %s: %w", e.Name, err)
		}
		if e.References, err = decodeReferences(xe.References); err != nil {
			return nil, fmt.Errorf("job entry %s: %w", e.Name, err)
		}
		j.Entries = append(j.Entries, e)
	}
	for _, h := range x.Hops {
		j.Hops = append(j.Hops, &domain.JobHop{
			From:          h.From,
			To:            h.To,
			Enabled:       bool(h.Enabled),
			Evaluation:    bool(h.Evaluation),
			Unconditional: bool(h.Unconditional),
		})
	}
	return j, nil
}
