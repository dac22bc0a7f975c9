package domain

import (
	"sort"
	"strings"
	"sync"
)

// SharedObject is a repository object referenced by name from many
// transformations and jobs.
type SharedObject interface {
	RepositoryObject
}

// DatabaseConnection describes a connection to a relational database
type DatabaseConnection struct {
	ID           ObjectID      `json:"id"`
	Name         string        `json:"name"`
	Type         string        `json:"type"`
	Access       string        `json:"access"`
	Host         string        `json:"host,omitempty"`
	DatabaseName string        `json:"database_name,omitempty"`
	Port         string        `json:"port,omitempty"`
	Username     string        `json:"username,omitempty"`
	Password     string        `json:"-"`
	Servername   string        `json:"servername,omitempty"`
	DataTBS      string        `json:"data_tablespace,omitempty"`
	IndexTBS     string        `json:"index_tablespace,omitempty"`
	Attributes   *AttributeSet `json:"attributes,omitempty"`
}

func (d *DatabaseConnection) Kind() Kind              { return KindDatabase }
func (d *DatabaseConnection) ObjectID() ObjectID      { return d.ID }
func (d *DatabaseConnection) SetObjectID(id ObjectID) { d.ID = id }
func (d *DatabaseConnection) ObjectName() string      { return d.Name }

// SlaveServer is a remote execution server
type SlaveServer struct {
	ID            ObjectID `json:"id"`
	Name          string   `json:"name"`
	Host          string   `json:"host"`
	Port          string   `json:"port,omitempty"`
	WebAppName    string   `json:"web_app_name,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"-"`
	ProxyHost     string   `json:"proxy_host,omitempty"`
	ProxyPort     string   `json:"proxy_port,omitempty"`
	NonProxyHosts string   `json:"non_proxy_hosts,omitempty"`
	Master        bool     `json:"master"`
}

func (s *SlaveServer) Kind() Kind              { return KindSlaveServer }
func (s *SlaveServer) ObjectID() ObjectID      { return s.ID }
func (s *SlaveServer) SetObjectID(id ObjectID) { s.ID = id }
func (s *SlaveServer) ObjectName() string      { return s.Name }

// ClusterSchema groups slave servers into an execution cluster
type ClusterSchema struct {
	ID                   ObjectID `json:"id"`
	Name                 string   `json:"name"`
	BasePort             string   `json:"base_port,omitempty"`
	SocketsBufferSize    string   `json:"sockets_buffer_size,omitempty"`
	SocketsFlushInterval string   `json:"sockets_flush_interval,omitempty"`
	SocketsCompressed    bool     `json:"sockets_compressed"`
	Dynamic              bool     `json:"dynamic"`
	SlaveServers         []string `json:"slave_servers,omitempty"`
}

func (c *ClusterSchema) Kind() Kind              { return KindClusterSchema }
func (c *ClusterSchema) ObjectID() ObjectID      { return c.ID }
func (c *ClusterSchema) SetObjectID(id ObjectID) { c.ID = id }
func (c *ClusterSchema) ObjectName() string      { return c.Name }

// PartitionSchema names the partitions data is distributed over
type PartitionSchema struct {
	ID                 ObjectID `json:"id"`
	Name               string   `json:"name"`
	Partitions         []string `json:"partitions,omitempty"`
	Dynamic            bool     `json:"dynamic"`
	PartitionsPerSlave string   `json:"partitions_per_slave,omitempty"`
}

func (p *PartitionSchema) Kind() Kind              { return KindPartitionSchema }
func (p *PartitionSchema) ObjectID() ObjectID      { return p.ID }
func (p *PartitionSchema) SetObjectID(id ObjectID) { p.ID = id }
func (p *PartitionSchema) ObjectName() string      { return p.Name }

type sharedKey struct {
	kind Kind
	name string
}

// SharedObjectSet maps (kind, name) to a shared object. Names compare
// case-insensitively. It is safe for concurrent use.
type SharedObjectSet struct {
	mu      sync.RWMutex
	objects map[sharedKey]SharedObject
}

// NewSharedObjectSet creates an empty set
func NewSharedObjectSet() *SharedObjectSet {
	return &SharedObjectSet{objects: make(map[sharedKey]SharedObject)}
}

func keyOf(kind Kind, name string) sharedKey {
	return sharedKey{kind: kind, name: strings.ToLower(name)}
}

// Put adds or replaces an object
func (s *SharedObjectSet) Put(obj SharedObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[keyOf(obj.Kind(), obj.ObjectName())] = obj
}

// Get returns the object of kind with the given name
func (s *SharedObjectSet) Get(kind Kind, name string) (SharedObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[keyOf(kind, name)]
	return obj, ok
}

// Remove drops an object from the set
func (s *SharedObjectSet) Remove(kind Kind, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, keyOf(kind, name))
}

// List returns the objects of one kind sorted by name
func (s *SharedObjectSet) List(kind Kind) []SharedObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SharedObject
	for k, obj := range s.objects {
		if k.kind == kind {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectName() < out[j].ObjectName() })
	return out
}

// Len returns the number of objects in the set
func (s *SharedObjectSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
