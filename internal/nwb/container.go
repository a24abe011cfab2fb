package nwb

import (
	"fmt"
	"path"
	"strings"
)

// Dataset element types.
const (
	DTypeInt64   = "int64"
	DTypeFloat64 = "float64"
	DTypeText    = "text"
	DTypeBool    = "bool"
)

// Container format identification written as root attributes.
const (
	FormatNamespace = "core"
	FormatVersion   = "2.5.0"
)

// Attribute is a named scalar attached to a group or dataset.
type Attribute struct {
	Name  string
	Value any
}

// Dataset is a named one-dimensional array.
type Dataset struct {
	Name       string
	DType      string
	Data       any // []int64, []float64, []string or []bool matching DType
	Attributes []Attribute
}

// Len returns the number of elements in the dataset.
func (d *Dataset) Len() int {
	switch v := d.Data.(type) {
	case []int64:
		return len(v)
	case []float64:
		return len(v)
	case []string:
		return len(v)
	case []bool:
		return len(v)
	default:
		return 0
	}
}

// Group is a node of the container hierarchy.
type Group struct {
	Name       string
	Attributes []Attribute
	Datasets   []*Dataset
	Groups     []*Group
}

// Container is a complete in-memory file.
type Container struct {
	Root *Group
}

// NewContainer returns a container whose root carries the format attributes.
func NewContainer(identifier, description string) *Container {
	root := &Group{Name: "/"}
	root.SetAttr("namespace", FormatNamespace)
	root.SetAttr("nwb_version", FormatVersion)
	root.SetAttr("identifier", identifier)
	root.SetAttr("session_description", description)
	return &Container{Root: root}
}

// SetAttr sets or replaces an attribute.
func (g *Group) SetAttr(name string, value any) {
	for i := range g.Attributes {
		if g.Attributes[i].Name == name {
			g.Attributes[i].Value = value
			return
		}
	}
	g.Attributes = append(g.Attributes, Attribute{Name: name, Value: value})
}

// Attr returns the attribute value for name.
func (g *Group) Attr(name string) (any, bool) {
	for _, a := range g.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Child returns the direct subgroup called name, creating it when missing.
func (g *Group) Child(name string) *Group {
	for _, child := range g.Groups {
		if child.Name == name {
			return child
		}
	}
	child := &Group{Name: name}
	g.Groups = append(g.Groups, child)
	return child
}

// AddDataset appends a dataset. The element type is derived from data.
func (g *Group) AddDataset(name string, data any) (*Dataset, error) {
	dtype, err := dtypeOf(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	ds := &Dataset{Name: name, DType: dtype, Data: data}
	g.Datasets = append(g.Datasets, ds)
	return ds, nil
}

// Dataset returns the dataset called name.
func (g *Group) Dataset(name string) (*Dataset, bool) {
	for _, ds := range g.Datasets {
		if ds.Name == name {
			return ds, true
		}
	}
	return nil, false
}

// Lookup resolves a slash-separated path from the root.
func (c *Container) Lookup(p string) (*Group, bool) {
	g := c.Root
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		var next *Group
		for _, child := range g.Groups {
			if child.Name == part {
				next = child
				break
			}
		}
		if next == nil {
			return nil, false
		}
		g = next
	}
	return g, true
}

// Walk visits every group depth-first with its absolute path.
func (c *Container) Walk(fn func(groupPath string, g *Group) error) error {
	var visit func(string, *Group) error
	visit = func(p string, g *Group) error {
		if err := fn(p, g); err != nil {
			return err
		}
		for _, child := range g.Groups {
			if err := visit(path.Join(p, child.Name), child); err != nil {
				return err
			}
		}
		return nil
	}
	return visit("/", c.Root)
}

func dtypeOf(data any) (string, error) {
	switch data.(type) {
	case []int64:
		return DTypeInt64, nil
	case []float64:
		return DTypeFloat64, nil
	case []string:
		return DTypeText, nil
	case []bool:
		return DTypeBool, nil
	default:
		return "", fmt.Errorf("unsupported element type %T", data)
	}
}
