package runtime

import (
	"fmt"
	"strings"
)

// VarKey addresses a value produced by a node. Its string form "#node.name#"
// only exists at the template and snapshot boundary.
type VarKey struct {
	NodeID string
	Name   string
}

func Key(nodeID, name string) VarKey {
	return VarKey{NodeID: nodeID, Name: name}
}

func (k VarKey) String() string {
	return "#" + k.NodeID + "." + k.Name + "#"
}

// ParseVarKey parses "#node.name#". The node id ends at the first dot.
func ParseVarKey(s string) (VarKey, bool) {
	if len(s) < 5 || s[0] != '#' || s[len(s)-1] != '#' {
		return VarKey{}, false
	}
	return parseDotted(s[1 : len(s)-1])
}

func parseDotted(inner string) (VarKey, bool) {
	nodeID, name, ok := strings.Cut(inner, ".")
	if !ok || nodeID == "" || name == "" {
		return VarKey{}, false
	}
	return VarKey{NodeID: nodeID, Name: name}, true
}

// Selector is the [node_id, name] pair used by node configs to reference a variable.
type Selector []string

func (s Selector) Key() (VarKey, error) {
	if len(s) != 2 || s[0] == "" || s[1] == "" {
		return VarKey{}, fmt.Errorf("selector must be [node_id, name], got %v", []string(s))
	}
	return VarKey{NodeID: s[0], Name: s[1]}, nil
}

// VariablePool is the variable bag of one execution. Namespaced values live
// under VarKey; caller-supplied plain keys live beside them. It is owned by a
// single run and is not safe for concurrent use.
type VariablePool struct {
	scoped map[VarKey]Value
	plain  map[string]Value
}

func NewVariablePool() *VariablePool {
	return &VariablePool{
		scoped: make(map[VarKey]Value),
		plain:  make(map[string]Value),
	}
}

// Seed copies caller variables verbatim. Keys shaped like "#node.name#" land
// in the namespaced space, everything else is a plain key.
func (p *VariablePool) Seed(vars map[string]any) {
	for k, v := range vars {
		if key, ok := ParseVarKey(k); ok {
			p.scoped[key] = ValueOf(v)
			continue
		}
		p.plain[k] = ValueOf(v)
	}
}

func (p *VariablePool) Set(key VarKey, v Value) {
	p.scoped[key] = v
}

func (p *VariablePool) Get(key VarKey) (Value, bool) {
	v, ok := p.scoped[key]
	return v, ok
}

func (p *VariablePool) Delete(key VarKey) {
	delete(p.scoped, key)
}

func (p *VariablePool) SetPlain(name string, v Value) {
	p.plain[name] = v
}

func (p *VariablePool) GetPlain(name string) (Value, bool) {
	v, ok := p.plain[name]
	return v, ok
}

// Resolve looks up the namespaced key first and falls back to the plain key
// carrying the same name.
func (p *VariablePool) Resolve(key VarKey) (Value, bool) {
	if v, ok := p.scoped[key]; ok {
		return v, true
	}
	return p.GetPlain(key.Name)
}

func (p *VariablePool) Len() int {
	return len(p.scoped) + len(p.plain)
}

// Snapshot renders the whole bag with namespaced keys in "#node.name#" form.
func (p *VariablePool) Snapshot() map[string]any {
	out := make(map[string]any, p.Len())
	for k, v := range p.plain {
		out[k] = v.Interface()
	}
	for k, v := range p.scoped {
		out[k.String()] = v.Interface()
	}
	return out
}

// Env exposes the bag to expression evaluation: node outputs are nested as
// env[node][name], plain keys sit at the top level unless shadowed by a node.
func (p *VariablePool) Env() map[string]any {
	env := make(map[string]any, p.Len())
	for k, v := range p.plain {
		env[k] = v.Interface()
	}
	for k, v := range p.scoped {
		ns, ok := env[k.NodeID].(map[string]any)
		if !ok {
			ns = map[string]any{}
			env[k.NodeID] = ns
		}
		ns[k.Name] = v.Interface()
	}
	return env
}
