package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"anvil/model"
)

func fixtureProject(t *testing.T) Project {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "app", "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "app", "src", "Main.kt"), []byte("fun main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	return Project{Name: "demo", Path: src, EditorFile: "app/src/Main.kt"}
}

func TestStage_CopiesAndPatches(t *testing.T) {
	project := fixtureProject(t)
	scratch := t.TempDir()

	staging, err := Stage(scratch, "ticket-1", project, []model.Patch{
		{Filename: "app/src/Main.kt", Contents: "fun main() { broken }"},
		{Filename: "app/src/Extra.kt", Contents: "val x = 1"},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(staging.Dir, "app", "src", "Main.kt"))
	require.NoError(t, err)
	require.Equal(t, "fun main() { broken }", string(got))

	got, err = os.ReadFile(filepath.Join(staging.Dir, "app", "src", "Extra.kt"))
	require.NoError(t, err)
	require.Equal(t, "val x = 1", string(got))

	_, err = os.Stat(filepath.Join(staging.Dir, ".git"))
	require.True(t, os.IsNotExist(err), "version control dirs must not be copied")

	pristine, err := os.ReadFile(project.EditorFilePath())
	require.NoError(t, err)
	require.Equal(t, "fun main() {}\n", string(pristine), "pristine tree must never change")

	staging.TearDown()
	_, err = os.Stat(staging.Dir)
	require.True(t, os.IsNotExist(err))
}

func TestStage_LastPatchWins(t *testing.T) {
	project := fixtureProject(t)

	staging, err := Stage(t.TempDir(), "ticket-2", project, []model.Patch{
		{Filename: "app/src/Main.kt", Contents: "first"},
		{Filename: "app/src/Main.kt", Contents: "second"},
	})
	require.NoError(t, err)
	defer staging.TearDown()

	got, err := os.ReadFile(filepath.Join(staging.Dir, "app", "src", "Main.kt"))
	require.NoError(t, err)
	require.Equal(t, "second", string(got))
}

func TestStage_RejectsEscapingPatches(t *testing.T) {
	project := fixtureProject(t)
	scratch := t.TempDir()

	tests := []struct {
		name     string
		filename string
	}{
		{name: "parent traversal", filename: "../evil.kt"},
		{name: "absolute path", filename: "/etc/passwd"},
		{name: "empty", filename: ""},
		{name: "nested traversal", filename: "app/../../evil.kt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Stage(scratch, "ticket-3", project, []model.Patch{
				{Filename: tt.filename, Contents: "x"},
			})
			require.ErrorIs(t, err, ErrMalformedPatch)
			_, statErr := os.Stat(filepath.Join(scratch, "ticket-3"))
			require.True(t, os.IsNotExist(statErr), "failed staging must clean up after itself")
		})
	}
}
