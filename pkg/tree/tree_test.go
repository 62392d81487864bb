package tree

import (
	"testing"
	"time"

	"turf/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, topicID string) models.Message {
	return models.Message{ID: id, TopicID: topicID, AuthorID: "author-" + id, Content: "content " + id}
}

func reply(id, parentID, topicID string) models.Message {
	m := msg(id, topicID)
	m.ParentID = &parentID
	return m
}

func TestApplyInsertTopLevelOrder(t *testing.T) {
	tr := New("viewer")

	assert.True(t, tr.ApplyInsert(msg("a", "t1")))
	assert.True(t, tr.ApplyInsert(msg("b", "t1")))
	assert.True(t, tr.ApplyInsert(msg("c", "t1")))

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, "c", snap[2].ID)
}

func TestApplyInsertDuplicateIsNoOp(t *testing.T) {
	tr := New("viewer")

	require.True(t, tr.ApplyInsert(msg("a", "t1")))
	assert.False(t, tr.ApplyInsert(msg("a", "t1")))
	assert.Equal(t, 1, tr.Len())
	assert.Len(t, tr.Snapshot(), 1)
}

func TestApplyInsertReplyNesting(t *testing.T) {
	tr := New("viewer")

	require.True(t, tr.ApplyInsert(msg("parent", "t1")))
	require.True(t, tr.ApplyInsert(reply("child", "parent", "t1")))

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Replies, 1)
	assert.Equal(t, "child", snap[0].Replies[0].ID)
}

func TestApplyInsertOrphanReplyDropped(t *testing.T) {
	tr := New("viewer")

	assert.False(t, tr.ApplyInsert(reply("child", "missing", "t1")))
	assert.Equal(t, 0, tr.Len())
}

func TestApplyInsertReplyToReplyDropped(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("parent", "t1")))
	require.True(t, tr.ApplyInsert(reply("child", "parent", "t1")))

	// A reply pointing at another reply never attaches.
	assert.False(t, tr.ApplyInsert(reply("grandchild", "child", "t1")))
	assert.Equal(t, 2, tr.Len())
}

func TestApplyUpdateMergesFields(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))

	edited := time.Now()
	content := "revised"
	assert.True(t, tr.ApplyUpdate(MessageUpdate{ID: "a", Content: &content, EditedAt: &edited}))

	got, ok := tr.Get("a")
	require.True(t, ok)
	assert.Equal(t, "revised", got.Content)
	require.NotNil(t, got.EditedAt)
	assert.Equal(t, edited, *got.EditedAt)
}

func TestApplyUpdateUnknownIDIsNoOp(t *testing.T) {
	tr := New("viewer")
	content := "whatever"
	assert.False(t, tr.ApplyUpdate(MessageUpdate{ID: "ghost", Content: &content}))
}

func TestApplyUpdateReachesNestedReply(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("parent", "t1")))
	require.True(t, tr.ApplyInsert(reply("child", "parent", "t1")))

	content := "edited reply"
	assert.True(t, tr.ApplyUpdate(MessageUpdate{ID: "child", Content: &content}))

	snap := tr.Snapshot()
	assert.Equal(t, "edited reply", snap[0].Replies[0].Content)
}

func TestApplyDeleteTopLevelCascades(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("parent", "t1")))
	require.True(t, tr.ApplyInsert(reply("r1", "parent", "t1")))
	require.True(t, tr.ApplyInsert(reply("r2", "parent", "t1")))
	require.True(t, tr.ApplyInsert(msg("other", "t1")))

	assert.True(t, tr.ApplyDelete("parent"))
	assert.Equal(t, 1, tr.Len())

	_, ok := tr.Get("r1")
	assert.False(t, ok)
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "other", snap[0].ID)
}

func TestApplyDeleteReplyOnly(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("parent", "t1")))
	require.True(t, tr.ApplyInsert(reply("r1", "parent", "t1")))
	require.True(t, tr.ApplyInsert(reply("r2", "parent", "t1")))

	assert.True(t, tr.ApplyDelete("r1"))

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Replies, 1)
	assert.Equal(t, "r2", snap[0].Replies[0].ID)
}

func TestApplyDeleteAbsentIsNoOp(t *testing.T) {
	tr := New("viewer")
	assert.False(t, tr.ApplyDelete("ghost"))
}

func TestApplyDeleteThenDuplicateDelete(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))
	assert.True(t, tr.ApplyDelete("a"))
	assert.False(t, tr.ApplyDelete("a"))
}

func TestApplyReactionKeepsOneEntryPerEmoji(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))

	assert.True(t, tr.ApplyReaction("a", "🔥", 1, false))
	assert.True(t, tr.ApplyReaction("a", "🔥", 2, false))
	assert.True(t, tr.ApplyReaction("a", "👍", 1, false))

	got, _ := tr.Get("a")
	require.Len(t, got.Reactions, 2)
	byEmoji := map[string]int{}
	for _, r := range got.Reactions {
		byEmoji[r.Emoji] = r.Count
	}
	assert.Equal(t, 2, byEmoji["🔥"])
	assert.Equal(t, 1, byEmoji["👍"])
}

func TestApplyReactionDeletedRemovesEntry(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))
	require.True(t, tr.ApplyReaction("a", "🔥", 1, false))

	assert.True(t, tr.ApplyReaction("a", "🔥", 0, true))
	got, _ := tr.Get("a")
	assert.Empty(t, got.Reactions)
}

func TestApplyReactionUnknownMessage(t *testing.T) {
	tr := New("viewer")
	assert.False(t, tr.ApplyReaction("ghost", "🔥", 1, false))
}

func TestApplyVoteOverwritesTallies(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))

	assert.True(t, tr.ApplyVote("a", 4, 2, "someone-else", models.VoteUp))

	got, _ := tr.Get("a")
	assert.Equal(t, 4, got.Upvotes)
	assert.Equal(t, 2, got.Downvotes)
	// Another user's vote never touches the viewer's own indicator.
	assert.Equal(t, "", got.UserVote)
}

func TestApplyVoteSetsViewerIndicatorForOwnVote(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))

	require.True(t, tr.ApplyVote("a", 1, 0, "viewer", models.VoteUp))
	got, _ := tr.Get("a")
	assert.Equal(t, models.VoteUp, got.UserVote)

	// Toggle off lands in none.
	require.True(t, tr.ApplyVote("a", 0, 0, "viewer", models.VoteNone))
	got, _ = tr.Get("a")
	assert.Equal(t, models.VoteNone, got.UserVote)
}

func TestApplyVoteClampsNegativeTallies(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))

	require.True(t, tr.ApplyVote("a", -1, -3, "u", models.VoteNone))
	got, _ := tr.Get("a")
	assert.Equal(t, 0, got.Upvotes)
	assert.Equal(t, 0, got.Downvotes)
}

func TestLoadRebuildsProjection(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("stale", "t1")))

	parent := msg("p", "t1")
	parent.Replies = []models.Message{reply("r", "p", "t1")}
	tr.Load([]models.Message{parent, msg("q", "t1")})

	assert.Equal(t, 3, tr.Len())
	_, ok := tr.Get("stale")
	assert.False(t, ok)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "p", snap[0].ID)
	require.Len(t, snap[0].Replies, 1)
	assert.Equal(t, "r", snap[0].Replies[0].ID)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	tr := New("viewer")
	require.True(t, tr.ApplyInsert(msg("a", "t1")))
	require.True(t, tr.ApplyReaction("a", "🔥", 1, false))

	snap := tr.Snapshot()
	snap[0].Content = "mutated"
	snap[0].Reactions[0].Count = 99

	got, _ := tr.Get("a")
	assert.Equal(t, "content a", got.Content)
	assert.Equal(t, 1, got.Reactions[0].Count)
}
