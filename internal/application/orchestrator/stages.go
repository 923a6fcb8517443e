package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/config"
	"github.com/chartport/chartport/internal/domain"
	"github.com/chartport/chartport/internal/ports"
)

// process runs one full attempt on a task: Validating -> Converting ->
// Editing, with every outcome classified before its transition is written.
// The raw and converted markup live only in this frame; nothing transient is
// persisted.
func (o *Orchestrator) process(ctx context.Context, task *domain.ConversionTask, cfg config.Pipeline) {
	key := task.Key
	log := o.logger.With(
		zap.String("key", key.String()),
		zap.String("page_title", task.PageTitle))

	// Retryable tasks re-enter through Pending once their backoff passed.
	if task.Status == domain.StatusRetryable {
		if !o.transition(ctx, key, domain.StatusPending, domain.ClassNone, "") {
			return
		}
	}

	if !o.transition(ctx, key, domain.StatusValidating, domain.ClassNone, "") {
		return
	}

	validatingStart := time.Now()

	rev, err := o.content.FetchWikitext(ctx, key.PageID)
	if err != nil {
		log.Warn("page fetch failed", zap.Error(err))
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassConflictOrTransportError, err.Error())
		return
	}

	raws, err := o.converter.Extract(ctx, rev.Text)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassConversionServiceUnavailable, err.Error())
		return
	}

	if key.Ordinal >= len(raws) {
		// The legacy markup at this ordinal is gone. If the new-dialect
		// marker for our artifact is present a prior attempt already landed.
		if task.ProposedName != "" && containsMarker(rev.Text, task.ProposedName) {
			o.completeAlreadyConverted(ctx, key, log)
			return
		}
		log.Info("legacy markup no longer present, skipping")
		o.transition(ctx, key, domain.StatusSkipped, domain.ClassSourceMissing, "legacy markup no longer present on page")
		return
	}

	inst := domain.NewGraphInstance(key.PageID, key.Ordinal, raws[key.Ordinal])
	if inst.Fingerprint != task.Fingerprint {
		// Content changed since the last scan; track and convert what is
		// live now rather than a stale snapshot.
		if err := o.store.SetFingerprint(ctx, key, inst.Fingerprint); err != nil {
			log.Error("failed to update fingerprint", zap.Error(err))
			o.transition(ctx, key, domain.StatusRetryable, domain.ClassUnknown, err.Error())
			return
		}
		task.Fingerprint = inst.Fingerprint
	}

	name := o.proposeName(ctx, rev.Page.Title, key)

	exists, err := o.registry.Exists(ctx, name)
	if err != nil {
		log.Warn("naming registry unreachable", zap.Error(err))
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassRegistryUnavailable, err.Error())
		return
	}
	if exists {
		// Never silently overwrite an existing artifact.
		log.Info("proposed name already taken", zap.String("proposed_name", name))
		o.transition(ctx, key, domain.StatusSkipped, domain.ClassNameCollision, "artifact name already exists: "+name)
		return
	}

	if err := o.store.SetProposedName(ctx, key, name); err != nil {
		log.Error("failed to record proposed name", zap.Error(err))
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassUnknown, err.Error())
		return
	}

	o.metrics.RecordStageDuration("validating", time.Since(validatingStart))
	if !o.transition(ctx, key, domain.StatusConverting, domain.ClassNone, "") {
		return
	}

	convertingStart := time.Now()

	result, err := o.converter.Convert(ctx, inst.Raw)
	if err != nil {
		log.Warn("conversion service unreachable", zap.Error(err))
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassConversionServiceUnavailable, err.Error())
		return
	}
	if result.Rejected {
		// Deterministic failure; retrying the same markup cannot succeed.
		log.Info("markup rejected by converter", zap.String("reason", result.Reason))
		o.transition(ctx, key, domain.StatusSkipped, domain.ClassUnconvertibleMarkup, result.Reason)
		return
	}

	o.metrics.RecordStageDuration("converting", time.Since(convertingStart))
	if !o.transition(ctx, key, domain.StatusEditing, domain.ClassNone, "") {
		return
	}

	o.edit(ctx, task, cfg, rev.Page, name, inst, result.Converted, log)
}

// edit refetches the live page, re-verifies the target instance and commits
// the substitution against the fetched revision.
func (o *Orchestrator) edit(
	ctx context.Context,
	task *domain.ConversionTask,
	cfg config.Pipeline,
	page domain.Page,
	name string,
	inst domain.GraphInstance,
	converted string,
	log *zap.Logger,
) {
	key := task.Key
	editingStart := time.Now()

	// Always re-fetch; the scan-time copy cannot see concurrent edits.
	rev, err := o.content.FetchWikitext(ctx, key.PageID)
	if err != nil {
		log.Warn("page refetch failed", zap.Error(err))
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassConflictOrTransportError, err.Error())
		return
	}

	raws, err := o.converter.Extract(ctx, rev.Text)
	if err != nil {
		log.Warn("extraction failed during edit", zap.Error(err))
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassConversionServiceUnavailable, err.Error())
		return
	}

	if key.Ordinal >= len(raws) || domain.FingerprintOf(raws[key.Ordinal]) != task.Fingerprint {
		if containsMarker(rev.Text, name) {
			// A prior attempt already replaced the markup; the store just
			// never saw the Done write.
			log.Info("converted marker already present, completing")
			o.metrics.RecordEdit("already_converted")
			o.transition(ctx, key, domain.StatusDone, domain.ClassNone, "")
			return
		}
		// Someone edited the graph out from under us; reset fingerprint
		// tracking so the next attempt reconverts fresh content.
		if key.Ordinal < len(raws) {
			if err := o.store.SetFingerprint(ctx, key, domain.FingerprintOf(raws[key.Ordinal])); err != nil {
				log.Error("failed to reset fingerprint", zap.Error(err))
			}
		}
		log.Info("source changed before edit, retrying")
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassEditConflict, "source markup changed before edit")
		return
	}

	newText, ok := substituteAt(rev.Text, raws, key.Ordinal, converted)
	if !ok {
		log.Warn("target markup not found at expected position")
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassEditConflict, "target markup not found in live wikitext")
		return
	}

	outcome, err := o.content.SubmitEdit(ctx, ports.EditRequest{
		PageID:           key.PageID,
		ExpectedRevision: rev.Page.Revision,
		NewText:          newText,
		Summary:          editSummary(cfg, page, rev.Page.Revision),
	})
	if err != nil {
		log.Warn("edit submission failed", zap.Error(err))
		o.metrics.RecordEdit("error")
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassConflictOrTransportError, err.Error())
		return
	}
	if outcome == ports.EditConflict {
		log.Info("edit conflict reported by content API")
		o.metrics.RecordEdit("conflict")
		o.transition(ctx, key, domain.StatusRetryable, domain.ClassEditConflict, "revision conflict on submit")
		return
	}

	o.metrics.RecordEdit("ok")
	o.metrics.RecordStageDuration("editing", time.Since(editingStart))
	log.Info("graph converted",
		zap.String("proposed_name", name),
		zap.Int64("base_revision", rev.Page.Revision))
	o.transition(ctx, key, domain.StatusDone, domain.ClassNone, "")
}

// completeAlreadyConverted walks a task whose edit already landed through the
// remaining stages to Done without touching any collaborator.
func (o *Orchestrator) completeAlreadyConverted(ctx context.Context, key domain.TaskKey, log *zap.Logger) {
	log.Info("page already carries converted markup, completing")
	for _, status := range []domain.Status{domain.StatusConverting, domain.StatusEditing, domain.StatusDone} {
		if !o.transition(ctx, key, status, domain.ClassNone, "") {
			return
		}
	}
	o.metrics.RecordEdit("already_converted")
}

// editSummary builds the edit summary, citing the source revision the way
// operators expect for audit.
func editSummary(cfg config.Pipeline, page domain.Page, revision int64) string {
	if revision <= 0 {
		return cfg.EditSummary
	}
	return fmt.Sprintf("%s (source: %s, revision %d)", cfg.EditSummary, page.Title, revision)
}

// substituteAt replaces the ordinal-th extracted instance inside text.
// Identical raw markup may occur multiple times on one page, so the
// replacement targets the occurrence matching the ordinal's position among
// its duplicates, never blindly the first match.
func substituteAt(text string, raws []string, ordinal int, replacement string) (string, bool) {
	target := raws[ordinal]

	occurrence := 0
	for i := 0; i < ordinal; i++ {
		if raws[i] == target {
			occurrence++
		}
	}

	idx := 0
	for n := 0; ; n++ {
		j := strings.Index(text[idx:], target)
		if j < 0 {
			return "", false
		}
		idx += j
		if n == occurrence {
			return text[:idx] + replacement + text[idx+len(target):], true
		}
		idx += len(target)
	}
}

// containsMarker reports whether text already references the converted
// artifact for name.
func containsMarker(text, name string) bool {
	return strings.Contains(text, "definition="+name+domain.ChartExt)
}
