package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed registry_schema.cue
var registrySchemaCUE string

// SlackChannel identifies the single source channel the service listens to.
type SlackChannel struct {
	ChannelName string `json:"channel_name"`
	ChannelID   string `json:"channel_id"`
}

// RegistryProject is one configured project with its owner set.
type RegistryProject struct {
	ProjectID    string   `json:"project_id"`
	Name         string   `json:"name"`
	OwnerUserIDs []string `json:"owner_user_ids"`
}

// Registry is the static project registry: the set of valid project ids,
// their owners, and the source channel. It is loaded once at startup and
// never mutated afterwards.
type Registry struct {
	Slack    SlackChannel
	projects map[string]RegistryProject
	ids      []string // sorted
}

// registryFile mirrors the on-disk shape: projects keyed by id.
type registryFile struct {
	Slack    SlackChannel `json:"slack"`
	Projects map[string]struct {
		Name         string   `json:"name"`
		OwnerUserIDs []string `json:"owner_user_ids"`
	} `json:"projects"`
}

// LoadRegistry reads and validates the CUE registry file at path. The file
// must satisfy the embedded schema (non-blank names and channel fields, at
// least one owner per project) and must declare at least two projects.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file %s: %w", path, err)
	}

	ctx := cuecontext.New()

	schema := ctx.CompileString(registrySchemaCUE, cue.Filename("registry_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}
	schemaDef := schema.LookupPath(cue.ParsePath("#Registry"))
	if err := schemaDef.Err(); err != nil {
		return nil, fmt.Errorf("lookup registry schema: %w", err)
	}

	value := ctx.CompileBytes(raw, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile registry file %s: %w", path, err)
	}

	unified := schemaDef.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid registry file %s: %w", path, err)
	}

	var file registryFile
	if err := unified.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode registry file %s: %w", path, err)
	}

	if len(file.Projects) < 2 {
		return nil, fmt.Errorf("invalid registry file %s: at least 2 projects required, got %d", path, len(file.Projects))
	}

	r := &Registry{
		Slack:    file.Slack,
		projects: make(map[string]RegistryProject, len(file.Projects)),
	}
	for id, p := range file.Projects {
		r.projects[id] = RegistryProject{
			ProjectID:    id,
			Name:         p.Name,
			OwnerUserIDs: append([]string(nil), p.OwnerUserIDs...),
		}
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	return r, nil
}

// Project looks up a configured project by id.
func (r *Registry) Project(projectID string) (RegistryProject, bool) {
	p, ok := r.projects[projectID]
	return p, ok
}

// ProjectIDs returns all configured project ids, sorted. This is the set
// surfaced back to users on unknown-project rejections.
func (r *Registry) ProjectIDs() []string {
	return append([]string(nil), r.ids...)
}

// Projects returns all configured projects ordered by id.
func (r *Registry) Projects() []RegistryProject {
	out := make([]RegistryProject, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.projects[id])
	}
	return out
}

// Owners returns the owner set of a configured project, nil for unknown
// ids. Implements the notification builder's OwnerDirectory.
func (r *Registry) Owners(projectID string) []string {
	p, ok := r.projects[projectID]
	if !ok {
		return nil
	}
	return append([]string(nil), p.OwnerUserIDs...)
}
