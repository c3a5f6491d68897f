package services

import (
	"context"
	"testing"

	"civic-task-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertProfileKeepsEngineFields(t *testing.T) {
	db := setupTestDB(t)
	dir := NewUserDirectory(db)
	ctx := context.Background()

	require.NoError(t, dir.UpsertProfile(ctx, Profile{ExternalID: "ext-1", Username: "ana", Neighborhood: "Old Town", Active: true}))
	user, err := dir.ByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, user.NeighborhoodID)
	require.NoError(t, db.Model(user).Updates(map[string]interface{}{"points": 420, "streak": 6}).Error)

	require.NoError(t, dir.UpsertProfile(ctx, Profile{ExternalID: "ext-1", Username: "ana.b", Neighborhood: "old town", Active: false}))

	got, err := dir.ByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "ana.b", got.Username)
	assert.False(t, got.IsActive)
	assert.Equal(t, int64(420), got.Points)
	assert.Equal(t, 6, got.Streak)
	assert.Equal(t, *user.NeighborhoodID, *got.NeighborhoodID, "same slug, same neighborhood")

	var hoods int64
	require.NoError(t, db.Model(&models.Neighborhood{}).Count(&hoods).Error)
	assert.Equal(t, int64(1), hoods)
}

func TestUpsertProfileWithoutNeighborhood(t *testing.T) {
	db := setupTestDB(t)
	dir := NewUserDirectory(db)
	ctx := context.Background()

	require.NoError(t, dir.UpsertProfile(ctx, Profile{ExternalID: "ext-2", Username: "bo", Active: true}))
	user, err := dir.ByExternalID(ctx, "ext-2")
	require.NoError(t, err)
	assert.Nil(t, user.NeighborhoodID)
	assert.True(t, user.IsActive)
	assert.Equal(t, 1, user.Level)

	assert.Error(t, dir.UpsertProfile(ctx, Profile{Username: "nobody"}))
}

func TestByExternalIDUnknown(t *testing.T) {
	db := setupTestDB(t)

	_, err := NewUserDirectory(db).ByExternalID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
