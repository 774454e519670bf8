// Package resolver maps user-supplied server and difficulty tokens onto
// canonical backend ids: an exact alias table first, the backend's fuzzy
// search as the fallback. It never guesses; an unmatched token is an error
// the caller surfaces to the user.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uika/tsugu-go-bot/pkg/tsugudto"
)

var (
	ErrServerUnmatched     = errors.New("server name unmatched")
	ErrDifficultyUnmatched = errors.New("difficulty name unmatched")
)

// FuzzySearcher is the remote fallback for tokens the alias tables miss.
type FuzzySearcher interface {
	FuzzySearch(ctx context.Context, text string) (*tsugudto.FuzzyResult, error)
}

var serverAliases = map[string]tsugudto.ServerID{
	"0": tsugudto.ServerJP, "jp": tsugudto.ServerJP, "日服": tsugudto.ServerJP,
	"1": tsugudto.ServerEN, "en": tsugudto.ServerEN, "国际服": tsugudto.ServerEN,
	"2": tsugudto.ServerTW, "tw": tsugudto.ServerTW, "台服": tsugudto.ServerTW,
	"3": tsugudto.ServerCN, "cn": tsugudto.ServerCN, "国服": tsugudto.ServerCN,
	"4": tsugudto.ServerKR, "kr": tsugudto.ServerKR, "韩服": tsugudto.ServerKR,
}

var difficultyAliases = map[string]tsugudto.DifficultyID{
	"easy": tsugudto.DifficultyEasy, "ez": tsugudto.DifficultyEasy, "简单": tsugudto.DifficultyEasy,
	"normal": tsugudto.DifficultyNormal, "nm": tsugudto.DifficultyNormal, "普通": tsugudto.DifficultyNormal,
	"hard": tsugudto.DifficultyHard, "hd": tsugudto.DifficultyHard, "困难": tsugudto.DifficultyHard,
	"expert": tsugudto.DifficultyExpert, "ex": tsugudto.DifficultyExpert, "专家": tsugudto.DifficultyExpert,
	"special": tsugudto.DifficultySpecial, "sp": tsugudto.DifficultySpecial, "特殊": tsugudto.DifficultySpecial,
}

type Resolver struct {
	fuzzy FuzzySearcher
}

func New(fuzzy FuzzySearcher) *Resolver { return &Resolver{fuzzy: fuzzy} }

// Server resolves a server token. Exact aliases resolve without network cost;
// everything else goes through fuzzy search and takes the top candidate in
// the valid id range.
func (r *Resolver) Server(ctx context.Context, token string) (tsugudto.ServerID, error) {
	if id, ok := serverAliases[token]; ok {
		return id, nil
	}
	if r.fuzzy != nil {
		result, err := r.fuzzy.FuzzySearch(ctx, token)
		if err == nil && result != nil {
			for _, candidate := range result.Server {
				if id := tsugudto.ServerID(candidate); id.Valid() {
					return id, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrServerUnmatched, token)
}

// Difficulty resolves a difficulty token; latin aliases are case-insensitive.
func (r *Resolver) Difficulty(ctx context.Context, token string) (tsugudto.DifficultyID, error) {
	if id, ok := difficultyAliases[strings.ToLower(token)]; ok {
		return id, nil
	}
	if r.fuzzy != nil {
		result, err := r.fuzzy.FuzzySearch(ctx, token)
		if err == nil && result != nil {
			for _, candidate := range result.Difficulty {
				if id := tsugudto.DifficultyID(candidate); id.Valid() {
					return id, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrDifficultyUnmatched, token)
}

// TierLists holds the tier cutoffs each region publishes, used in the ycx
// usage text. Order matches the published help text (jp, tw, en, kr, cn).
var TierLists = []struct {
	Server tsugudto.ServerID
	Tiers  []int
}{
	{tsugudto.ServerJP, []int{20, 30, 40, 50, 100, 200, 300, 400, 500, 1000, 2000, 5000, 10000, 20000, 30000, 50000}},
	{tsugudto.ServerTW, []int{100, 500}},
	{tsugudto.ServerEN, []int{50, 100, 300, 500, 1000, 2000, 2500}},
	{tsugudto.ServerKR, []int{100}},
	{tsugudto.ServerCN, []int{20, 30, 40, 50, 100, 200, 300, 400, 500, 1000, 2000, 3000, 4000, 5000, 10000, 20000, 30000, 50000}},
}

// TierListText renders the per-server tier lists, one region per line.
func TierListText() string {
	var b strings.Builder
	for i, entry := range TierLists {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(entry.Server.ShortName())
		b.WriteString(" : ")
		for j, tier := range entry.Tiers {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%d", tier)
		}
	}
	return b.String()
}
