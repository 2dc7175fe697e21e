package listsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archiveworks/mailarch/internal/models"
)

func TestPlanGroupSync(t *testing.T) {
	existing := []models.ListGroup{
		{GroupID: 1, GroupName: "User lists", SortKey: 10},
		{GroupID: 2, GroupName: "Developer lists", SortKey: 20},
	}
	incoming := []GroupInfo{
		{ID: 1, Name: "User lists", SortKey: 10},
		{ID: 2, Name: "Hacker lists", SortKey: 20},
		{ID: 3, Name: "Regional lists", SortKey: 30},
	}

	toSave, notes := planGroupSync(existing, incoming)

	require.Len(t, toSave, 2)
	assert.Equal(t, models.ListGroup{GroupID: 2, GroupName: "Hacker lists", SortKey: 20}, toSave[0])
	assert.Equal(t, models.ListGroup{GroupID: 3, GroupName: "Regional lists", SortKey: 30}, toSave[1])
	assert.Len(t, notes, 2)
}

func TestPlanGroupSyncNeverDeletes(t *testing.T) {
	existing := []models.ListGroup{{GroupID: 1, GroupName: "Orphaned", SortKey: 10}}

	toSave, notes := planGroupSync(existing, nil)
	assert.Empty(t, toSave)
	assert.Empty(t, notes)
}

func TestPlanListSync(t *testing.T) {
	existing := []models.List{
		{ListID: 1, ListName: "demo", ShortDesc: "Demo", Description: "The demo list", Active: true, GroupID: 1},
	}
	incoming := []ListInfo{
		{ID: 1, Name: "demo", ShortDesc: "Demo", Description: "The demo list", Active: false, GroupID: 1},
		{ID: 2, Name: "announce", ShortDesc: "Announce", Description: "Announcements", Active: true, GroupID: 1},
	}

	toSave, notes := planListSync(existing, incoming)

	require.Len(t, toSave, 2)
	assert.False(t, toSave[0].Active)
	assert.Equal(t, "announce", toSave[1].ListName)
	require.Len(t, notes, 2)
	assert.Contains(t, notes[0], "active changed")
	assert.Contains(t, notes[1], "adding list")
}

func TestPlanListSyncNoChanges(t *testing.T) {
	existing := []models.List{
		{ListID: 1, ListName: "demo", ShortDesc: "Demo", Description: "The demo list", Active: true, GroupID: 1},
	}
	incoming := []ListInfo{
		{ID: 1, Name: "demo", ShortDesc: "Demo", Description: "The demo list", Active: true, GroupID: 1},
	}

	toSave, notes := planListSync(existing, incoming)
	assert.Empty(t, toSave)
	assert.Empty(t, notes)
}
