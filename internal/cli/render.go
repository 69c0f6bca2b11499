package cli

import (
	"fmt"
	"io"
	"time"

	"fishercore/internal/core"
	"fishercore/pkg/domain"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var numbers = message.NewPrinter(language.English)

// StatsView is the rendered form of a fisher's stats.
type StatsView struct {
	Wallet         string `json:"wallet"`
	TotalCatches   uint64 `json:"total_catches"`
	BigFishSpotted uint64 `json:"big_fish_spotted"`
	Reputation     uint64 `json:"reputation"`
	Rank           string `json:"rank"`
	NextRank       string `json:"next_rank,omitempty"`
	ToNextRank     uint64 `json:"to_next_rank"`
}

func newStatsView(stats domain.FisherStats) StatsView {
	v := StatsView{
		Wallet:         stats.Wallet.String(),
		TotalCatches:   stats.TotalCatches,
		BigFishSpotted: stats.BigFishSpotted,
		Reputation:     stats.Reputation,
		Rank:           stats.Rank.String(),
		ToNextRank:     domain.ReputationToNextRank(stats.Reputation),
	}
	if stats.Rank != domain.RankAdmiral {
		v.NextRank = stats.Rank.Next().String()
	}
	return v
}

func rankColor(rank string) *color.Color {
	switch rank {
	case domain.RankFisher.String():
		return color.New(color.FgGreen)
	case domain.RankCaptain.String():
		return color.New(color.FgYellow)
	case domain.RankAdmiral.String():
		return color.New(color.FgHiMagenta, color.Bold)
	default:
		return color.New(color.FgCyan)
	}
}

func writeField(w io.Writer, label, value string) error {
	_, err := fmt.Fprintf(w, "%-10s  %s\n", label, value)
	return err
}

func (v StatsView) render(w io.Writer) error {
	next := "-"
	if v.NextRank != "" {
		next = numbers.Sprintf("%s in %d points", v.NextRank, v.ToNextRank)
	}
	fields := [][2]string{
		{"wallet", v.Wallet},
		{"rank", rankColor(v.Rank).Sprint(v.Rank)},
		{"reputation", numbers.Sprintf("%d", v.Reputation)},
		{"catches", numbers.Sprintf("%d", v.TotalCatches)},
		{"big fish", numbers.Sprintf("%d", v.BigFishSpotted)},
		{"next rank", next},
	}
	for _, f := range fields {
		if err := writeField(w, f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

// CatchResultView is printed after a catch commits.
type CatchResultView struct {
	StatsView
	TokenRef string `json:"token_ref"`
	Score    int    `json:"score"`
	BigFish  bool   `json:"big_fish"`
}

func (v CatchResultView) render(w io.Writer) error {
	kind := "catch"
	if v.BigFish {
		kind = color.New(color.FgHiBlue, color.Bold).Sprint("big fish")
	}
	if _, err := fmt.Fprintf(w, "%s recorded: %s scored %d\n", kind, v.TokenRef, v.Score); err != nil {
		return err
	}
	return v.StatsView.render(w)
}

// CatchView is one archived catch.
type CatchView struct {
	ID         string    `json:"id"`
	TokenRef   string    `json:"token_ref"`
	Score      uint8     `json:"score"`
	BigFish    bool      `json:"big_fish"`
	Points     uint64    `json:"points"`
	Reputation uint64    `json:"reputation"`
	Rank       string    `json:"rank"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CatchListView is the catch history of one wallet.
type CatchListView struct {
	Wallet  string      `json:"wallet"`
	Catches []CatchView `json:"catches"`
}

func newCatchListView(wallet domain.Wallet, events []core.CatchEvent) CatchListView {
	v := CatchListView{Wallet: wallet.String(), Catches: make([]CatchView, 0, len(events))}
	for _, e := range events {
		v.Catches = append(v.Catches, CatchView{
			ID:         e.ID.String(),
			TokenRef:   e.TokenRef,
			Score:      e.Score,
			BigFish:    e.BigFish,
			Points:     e.Points,
			Reputation: e.Reputation,
			Rank:       e.Rank.String(),
			RecordedAt: e.RecordedAt,
		})
	}
	return v
}

func (v CatchListView) render(w io.Writer) error {
	if len(v.Catches) == 0 {
		_, err := fmt.Fprintf(w, "no catches recorded for %s\n", v.Wallet)
		return err
	}
	for _, c := range v.Catches {
		marker := " "
		if c.BigFish {
			marker = "*"
		}
		if _, err := numbers.Fprintf(w, "%s %s score %3d +%d -> %d %s  %s\n",
			c.RecordedAt.UTC().Format(time.RFC3339), marker, c.Score, c.Points, c.Reputation,
			rankColor(c.Rank).Sprint(c.Rank), c.TokenRef); err != nil {
			return err
		}
	}
	return nil
}

// IdentityView pairs a wallet with its derived record address.
type IdentityView struct {
	Wallet  string `json:"wallet"`
	Address string `json:"address"`
	KeyFile string `json:"key_file,omitempty"`
}

func (v IdentityView) render(w io.Writer) error {
	if v.KeyFile != "" {
		if err := writeField(w, "key file", v.KeyFile); err != nil {
			return err
		}
	}
	if err := writeField(w, "wallet", v.Wallet); err != nil {
		return err
	}
	return writeField(w, "address", v.Address)
}
