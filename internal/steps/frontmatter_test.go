package steps

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Meta
		wantErr error
	}{
		{
			name:    "lists",
			content: "---\nconsumes: [user-request]\nproduces: [problem, scope]\n---\n# Frame\n",
			want:    Meta{Name: "s", Consumes: []string{"user-request"}, Produces: []string{"problem", "scope"}},
		},
		{
			name:    "scalar and optional",
			content: "---\nconsumes: problem\noptional: true\n---\nbody",
			want:    Meta{Name: "s", Consumes: []string{"problem"}, Optional: true},
		},
		{
			name:    "crlf and duplicates",
			content: "---\r\nproduces:\r\n  - x\r\n  - ' x '\r\n  - y\r\n---\r\n",
			want:    Meta{Name: "s", Produces: []string{"x", "y"}},
		},
		{
			name:    "empty block",
			content: "---\n---\nbody",
			want:    Meta{Name: "s"},
		},
		{
			name:    "fence at end of file",
			content: "---\nproduces: [z]\n---",
			want:    Meta{Name: "s", Produces: []string{"z"}},
		},
		{
			name:    "no frontmatter",
			content: "# Just markdown\n",
			want:    Meta{Name: "s"},
			wantErr: ErrMissingFrontMatter,
		},
		{
			name:    "unterminated",
			content: "---\nconsumes: [a]\n",
			want:    Meta{Name: "s"},
			wantErr: ErrMalformedFrontMatter,
		},
		{
			name:    "bad yaml",
			content: "---\nconsumes: [a\n---\n",
			want:    Meta{Name: "s"},
			wantErr: ErrMalformedFrontMatter,
		},
		{
			name:    "nested list",
			content: "---\nproduces: [[a]]\n---\n",
			want:    Meta{Name: "s"},
			wantErr: ErrMalformedFrontMatter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("s", []byte(tt.content))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
