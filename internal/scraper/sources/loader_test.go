package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
sources:
  - name: list
    url: https://example.com/http.txt
  - name: pages
    type: table
    url: https://example.com/free/%d/
    pages: [1, 5]
    row: "table tbody tr"
    host: "td:nth-child(1)"
    port: "td:nth-child(2)"
    delay: 500ms
  - name: api
    type: regex
    url: https://example.com/api
    pattern: '(\d+\.\d+\.\d+\.\d+):(\d+)'
`)

	srcs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, srcs, 3)

	require.IsType(t, &RawListSource{}, srcs[0])
	table, ok := srcs[1].(*TableSource)
	require.True(t, ok)
	require.Equal(t, 1, table.cfg.FirstPage)
	require.Equal(t, 5, table.cfg.LastPage)
	require.Equal(t, "500ms", table.cfg.Delay.String())
	require.IsType(t, &RegexSource{}, srcs[2])
	require.Equal(t, "api", srcs[2].Name())
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":        `sources: []`,
		"no name":      "sources:\n  - url: https://x\n",
		"no url":       "sources:\n  - name: a\n",
		"dup":          "sources:\n  - {name: a, url: https://x}\n  - {name: a, url: https://y}\n",
		"unknown type": "sources:\n  - {name: a, url: https://x, type: ftp}\n",
		"bad pages":    "sources:\n  - {name: a, url: https://x, type: table, row: tr, host: td, pages: [1]}\n",
		"no selectors": "sources:\n  - {name: a, url: https://x, type: table}\n",
		"bad regex":    "sources:\n  - {name: a, url: https://x, type: regex, pattern: 'nogroup'}\n",
		"not yaml":     "sources: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	srcs := Defaults()
	require.Len(t, srcs, len(DefaultSpecs))
	for i, src := range srcs {
		require.Equal(t, DefaultSpecs[i].Name, src.Name())
	}
}
