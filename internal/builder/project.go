package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Project describes one buildable project on a worker.
type Project struct {
	Name string `json:"-"`
	// Path is the pristine source tree; staging copies it, never touches it.
	Path string `json:"path"`
	// EditorFile is the file exposed to the client editor, relative to Path.
	EditorFile  string `json:"editorFile"`
	TestClass   string `json:"testClass"`
	TestPackage string `json:"testPackage"`
}

// EditorFilePath returns the absolute path of the editor file.
func (p Project) EditorFilePath() string {
	return filepath.Join(p.Path, p.EditorFile)
}

type Projects map[string]Project

// LoadProjects reads the projects config file, a JSON object keyed by
// project name.
func LoadProjects(path string) (Projects, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read projects config %s: %w", path, err)
	}

	var projects Projects
	if err := json.Unmarshal(b, &projects); err != nil {
		return nil, fmt.Errorf("projects config %s is malformed: %w", path, err)
	}

	for name, p := range projects {
		p.Name = name
		if p.Path == "" || p.EditorFile == "" {
			return nil, fmt.Errorf("project %s is missing path or editorFile", name)
		}
		projects[name] = p
	}
	return projects, nil
}

// Get returns the named project, or false when unconfigured.
func (ps Projects) Get(name string) (Project, bool) {
	p, ok := ps[name]
	return p, ok
}
