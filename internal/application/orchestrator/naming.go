package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/chartport/chartport/internal/domain"
)

// ProposeName derives the artifact name for a graph from its page title and
// ordinal. The first graph on a page keeps the bare title; later ordinals are
// suffixed so two graphs on one page can never share a name.
func ProposeName(pageTitle string, ordinal int) string {
	title := strings.Join(strings.Fields(pageTitle), " ")
	if ordinal == 0 {
		return title
	}
	return fmt.Sprintf("%s %d", title, ordinal)
}

// proposeName applies the naming policy and then checks earlier sibling tasks
// on the same page: a title that itself ends in a number can make the policy
// collide across ordinals, in which case the ordinal is appended again.
func (o *Orchestrator) proposeName(ctx context.Context, pageTitle string, key domain.TaskKey) string {
	name := ProposeName(pageTitle, key.Ordinal)

	for i := 0; i < key.Ordinal; i++ {
		sibling, err := o.store.Get(ctx, domain.TaskKey{PageID: key.PageID, Ordinal: i})
		if err != nil {
			continue
		}
		if sibling.ProposedName == name {
			name = fmt.Sprintf("%s %d", name, key.Ordinal)
			break
		}
	}
	return name
}
