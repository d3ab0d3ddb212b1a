package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/example/amq-trainer/internal/platform/events"
	"github.com/example/amq-trainer/services/trainer/internal/anilist"
	"github.com/example/amq-trainer/services/trainer/internal/store"
)

// Push puts every media of set on the operator's list with status.
func (t *Trainer) Push(ctx context.Context, set string, status anilist.Status) error {
	entries, err := t.resolve(ctx, set)
	if err != nil {
		return err
	}
	list, err := t.operatorList(ctx)
	if err != nil {
		return err
	}
	return t.addOrUpdate(ctx, list, mediaIDs(entries), status)
}

// Delete removes the set's media from the operator's list. Media that are
// not on the list are skipped.
func (t *Trainer) Delete(ctx context.Context, set string) error {
	entries, err := t.resolve(ctx, set)
	if err != nil {
		return err
	}
	list, err := t.operatorList(ctx)
	if err != nil {
		return err
	}
	onList := entryIDsByMedia(list)
	var targets []store.Media
	for _, m := range entries {
		if _, ok := onList[m.ID]; ok {
			targets = append(targets, m)
		} else {
			t.log().Debug("not on list, skipping delete", zap.Int("media_id", m.ID))
		}
	}
	return t.deleteEntries(ctx, list, mediaIDs(targets))
}

// Replace makes the operator's list hold exactly the set with status.
// Entries outside the set are deleted, or moved to demote when it is set.
// An empty set is refused unless demote is set.
func (t *Trainer) Replace(ctx context.Context, set string, status, demote anilist.Status) error {
	entries, err := t.resolve(ctx, set)
	if err != nil {
		return err
	}
	if len(entries) == 0 && demote == "" {
		return fmt.Errorf("replace %q: %w", set, ErrEmptyReplace)
	}
	list, err := t.operatorList(ctx)
	if err != nil {
		return err
	}

	keep := make(map[int]struct{}, len(entries))
	for _, m := range entries {
		keep[m.ID] = struct{}{}
	}
	var rest []int
	for _, m := range list {
		if _, ok := keep[m.ID]; !ok {
			rest = append(rest, m.ID)
		}
	}

	if err := t.addOrUpdate(ctx, list, mediaIDs(entries), status); err != nil {
		return err
	}
	if demote != "" {
		return t.addOrUpdate(ctx, list, rest, demote)
	}
	return t.deleteEntries(ctx, list, rest)
}

// addOrUpdate updates the media already on list in one mutation and saves
// the others one by one.
func (t *Trainer) addOrUpdate(ctx context.Context, list []store.Media, ids []int, status anilist.Status) error {
	onList := entryIDsByMedia(list)
	var updateIDs, addIDs []int
	for _, id := range ids {
		if entryID, ok := onList[id]; ok {
			updateIDs = append(updateIDs, entryID)
		} else {
			addIDs = append(addIDs, id)
		}
	}

	if len(updateIDs) > 0 {
		updated, err := t.AniList.UpdateEntries(ctx, updateIDs, status)
		if err != nil {
			return err
		}
		for _, e := range updated {
			t.Events.Publish(events.SubjectEntryUpdated, "list_entry_updated", entryProps(e))
		}
		t.log().Info("updated entries", zap.Strings("entries", describe(updated)))
	}

	if len(addIDs) > 0 {
		added := make([]anilist.Entry, 0, len(addIDs))
		for _, id := range addIDs {
			e, err := t.AniList.SaveEntry(ctx, id, status)
			if err != nil {
				return err
			}
			t.Events.Publish(events.SubjectEntrySaved, "list_entry_saved", entryProps(e))
			added = append(added, e)
		}
		t.log().Info("added entries", zap.Strings("entries", describe(added)))
	}
	return nil
}

func (t *Trainer) deleteEntries(ctx context.Context, list []store.Media, ids []int) error {
	onList := entryIDsByMedia(list)
	deleted := 0
	for _, id := range ids {
		entryID, ok := onList[id]
		if !ok {
			continue
		}
		okDel, err := t.AniList.DeleteEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if !okDel {
			return fmt.Errorf("delete entry %d (media %d): not deleted", entryID, id)
		}
		t.Events.Publish(events.SubjectEntryDeleted, "list_entry_deleted",
			map[string]any{"media_id": id, "entry_id": entryID})
		deleted++
	}
	if deleted > 0 {
		t.log().Info("deleted entries", zap.Int("count", deleted))
	}
	return nil
}

func entryIDsByMedia(list []store.Media) map[int]int {
	out := make(map[int]int, len(list))
	for _, m := range list {
		if m.ListEntryID != nil {
			out[m.ID] = *m.ListEntryID
		}
	}
	return out
}

func mediaIDs(entries []store.Media) []int {
	out := make([]int, 0, len(entries))
	for _, m := range entries {
		out = append(out, m.ID)
	}
	return out
}

func entryProps(e anilist.Entry) map[string]any {
	return map[string]any{
		"entry_id": e.ID,
		"media_id": e.MediaID,
		"title":    e.Title,
		"status":   string(e.Status),
	}
}

// describe renders "title: STATUS" lines sorted by title, case-insensitive.
func describe(entries []anilist.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("%s: %s", e.Title, e.Status))
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}
