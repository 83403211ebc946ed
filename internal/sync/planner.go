package sync

import (
	"context"
	"fmt"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// listingKinds maps an entity kind to the listing page that enumerates
// candidate ids for unseen-count selection.
var listingKinds = map[hltv.EntityKind]hltv.PageKind{
	hltv.KindEvent:  hltv.PageEventList,
	hltv.KindTeam:   hltv.PageTeamRanking,
	hltv.KindPlayer: hltv.PagePlayerList,
}

// planRoots resolves the scope to the root entity ids of the run. An
// explicit external id binds directly; otherwise the listing page is
// fetched and filtered against the store, keeping listing order, until
// UnseenCount new entities are selected.
func (o *Orchestrator) planRoots(ctx context.Context, scope hltv.Scope) ([]int64, error) {
	if scope.ExternalID != 0 {
		return []int64{scope.ExternalID}, nil
	}
	if scope.UnseenCount <= 0 {
		return nil, fmt.Errorf("scope needs an external id or an unseen count")
	}

	listKind, ok := listingKinds[scope.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown scope kind %q", scope.Kind)
	}

	extraction, err := o.fetch(ctx, hltv.Unit{Kind: listKind})
	if err != nil {
		return nil, fmt.Errorf("load %s listing: %w", scope.Kind, err)
	}

	candidates := listedIDs(extraction)
	unseen, err := o.deps.Index.FilterUnseen(ctx, scope.Kind, candidates)
	if err != nil {
		return nil, fmt.Errorf("filter unseen %s: %w", scope.Kind, err)
	}

	if len(unseen) > scope.UnseenCount {
		unseen = unseen[:scope.UnseenCount]
	}
	return unseen, nil
}

func listedIDs(extraction hltv.Extraction) []int64 {
	var ids []int64
	switch extraction.Kind {
	case hltv.PageEventList:
		for _, e := range extraction.Events {
			ids = append(ids, e.ID)
		}
	case hltv.PageTeamRanking:
		for _, t := range extraction.Teams {
			ids = append(ids, t.ID)
		}
	case hltv.PagePlayerList:
		for _, p := range extraction.Players {
			ids = append(ids, p.ID)
		}
	}
	return dedupIDs(ids)
}
