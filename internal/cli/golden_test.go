package cli

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestStatsGolden(t *testing.T) {
	e := newTestEnv(t, false)
	captain := repeatWallet(0x0a)
	scores := []int{85, 40}
	for i := 0; i < 9; i++ {
		scores = append(scores, 90)
	}
	e.seed(t, captain, scores...)

	admiral := repeatWallet(0x0c)
	scores = scores[:0]
	for i := 0; i < 21; i++ {
		scores = append(scores, 95)
	}
	e.seed(t, admiral, scores...)

	cases := []struct {
		name string
		args []string
		code int
	}{
		{"stats_captain_text", []string{"stats", "--wallet", captain.String()}, ExitSuccess},
		{"stats_captain_json", []string{"--format", "json", "stats", "--wallet", captain.String()}, ExitSuccess},
		{"stats_admiral_text", []string{"stats", "--wallet", admiral.String()}, ExitSuccess},
		{"stats_not_found_json", []string{"--format", "json", "stats", "--wallet", repeatWallet(0x0b).String()}, ExitNotFound},
	}
	g := newGoldie(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.run(t, tc.args...)
			require.Equal(t, tc.code, res.code, res.stderr)
			g.Assert(t, tc.name, []byte(res.stdout))
		})
	}
}
