// Package tools adapts an MCP tool provider to the model's function-calling
// interface.
//
// [Discover] fetches the provider's catalogue once per session and freezes it
// in a [Snapshot]. [ToModelDeclarations] converts declarations into the shape
// the LLM provider expects, and a [Dispatcher] executes the model's tool
// requests against the provider, turning every outcome into a [Result].
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/mcpchat/internal/mcp"
	"github.com/MrWong99/mcpchat/pkg/types"
)

// Provider is the tool-provider boundary: something that can list tools and
// execute them. [mcp.Session] satisfies it.
type Provider interface {
	// ListTools returns the provider's tools in provider order.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool executes one tool. A Go error means the call itself failed;
	// tool-level failures come back as a result with IsError set.
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
}

// Declaration describes one tool as advertised by the provider.
type Declaration struct {
	// Name is the tool's unique identifier within the snapshot.
	Name string

	// Description is the tool's purpose. May be empty.
	Description string

	// InputSchema is the JSON Schema object for the tool's arguments, exactly
	// as the provider sent it.
	InputSchema map[string]any
}

// Snapshot is the immutable set of tool declarations fetched at connection
// time. It is held for the whole session and never refreshed.
type Snapshot struct {
	decls []Declaration
	index map[string]int
}

// NewSnapshot builds a snapshot from decls, preserving their order. It fails
// on empty or duplicate names.
func NewSnapshot(decls []Declaration) (*Snapshot, error) {
	s := &Snapshot{
		decls: make([]Declaration, len(decls)),
		index: make(map[string]int, len(decls)),
	}
	copy(s.decls, decls)
	for i, d := range s.decls {
		if d.Name == "" {
			return nil, fmt.Errorf("tools: declaration %d has an empty name", i)
		}
		if _, dup := s.index[d.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool name %q", d.Name)
		}
		s.index[d.Name] = i
	}
	return s, nil
}

// Declarations returns the declarations in provider order. The returned
// slice is a copy; the schema maps are shared and must not be modified.
func (s *Snapshot) Declarations() []Declaration {
	out := make([]Declaration, len(s.decls))
	copy(out, s.decls)
	return out
}

// Names returns the tool names in provider order.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.decls))
	for i, d := range s.decls {
		names[i] = d.Name
	}
	return names
}

// Lookup returns the declaration with the given name.
func (s *Snapshot) Lookup(name string) (Declaration, bool) {
	i, ok := s.index[name]
	if !ok {
		return Declaration{}, false
	}
	return s.decls[i], true
}

// suggestThreshold is the minimum Jaro-Winkler similarity for [Snapshot.Suggest].
const suggestThreshold = 0.85

// Suggest returns the snapshot tool whose name is closest to name, if any is
// similar enough to be a likely misspelling. Names are compared
// case-insensitively.
func (s *Snapshot) Suggest(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	best, bestScore := "", 0.0
	for _, d := range s.decls {
		score := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(d.Name), false)
		if score > bestScore {
			best, bestScore = d.Name, score
		}
	}
	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}

// Len returns the number of tools in the snapshot.
func (s *Snapshot) Len() int { return len(s.decls) }

// Discover lists the provider's tools and freezes them into a [Snapshot].
//
// Every failure is wrapped in [ErrConnection]: an unreachable provider, a tool
// without a name, duplicate names, or an input schema that is not a JSON
// Schema object.
func Discover(ctx context.Context, p Provider) (*Snapshot, error) {
	listed, err := p.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	decls := make([]Declaration, 0, len(listed))
	for _, t := range listed {
		if err := checkSchema(t.InputSchema); err != nil {
			return nil, fmt.Errorf("%w: tool %q: %w", ErrConnection, t.Name, err)
		}
		decls = append(decls, Declaration{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	snap, err := NewSnapshot(decls)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return snap, nil
}

// checkSchema rejects schemas that cannot be offered as function parameters.
func checkSchema(schema map[string]any) error {
	if schema == nil {
		return fmt.Errorf("missing input schema")
	}
	if typ, ok := schema["type"]; ok && typ != "object" {
		return fmt.Errorf("input schema type is %v, want object", typ)
	}
	return nil
}

// ToModelDeclarations converts declarations into the model's function-calling
// shape. It is a pure passthrough: name, description and schema are carried
// over unchanged and in order.
func ToModelDeclarations(decls []Declaration) []types.ToolDefinition {
	out := make([]types.ToolDefinition, len(decls))
	for i, d := range decls {
		out[i] = types.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
		}
	}
	return out
}
