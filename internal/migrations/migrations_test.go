package migrations

import (
	"strings"
	"testing"
)

func TestSourcesArePaired(t *testing.T) {
	for _, src := range []Source{Identity, Lore} {
		t.Run(src.Name, func(t *testing.T) {
			files, err := src.Files()
			if err != nil {
				t.Fatalf("Files() error = %v", err)
			}
			if len(files) == 0 {
				t.Fatal("Expected embedded migrations")
			}

			ups, downs := 0, 0
			for _, f := range files {
				switch {
				case strings.HasSuffix(f, ".up.sql"):
					ups++
				case strings.HasSuffix(f, ".down.sql"):
					downs++
				default:
					t.Errorf("Unexpected file %s", f)
				}
			}
			if ups != downs {
				t.Errorf("Expected matching up/down files, got %d up and %d down", ups, downs)
			}
		})
	}
}
