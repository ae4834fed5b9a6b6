package chat

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModerationAPI struct {
	resp   openai.ModerationResponse
	err    error
	called bool
}

func (f *fakeModerationAPI) Moderations(_ context.Context, _ openai.ModerationRequest) (openai.ModerationResponse, error) {
	f.called = true
	return f.resp, f.err
}

func TestModerateProfanityPreFilterSkipsExternalCall(t *testing.T) {
	api := &fakeModerationAPI{}
	m := NewModerationAdapter(api, "omni-moderation-latest", nil, nil)

	got, err := m.Moderate(context.Background(), "tangina mo, sagutin mo ako")
	require.NoError(t, err)
	assert.True(t, got.Flagged)
	assert.True(t, got.PreFiltered)
	assert.Contains(t, got.FlaggedCategories, "profanity")
	assert.False(t, api.called, "external call should be short-circuited")
}

func TestModerateAppliesPerCategoryThresholds(t *testing.T) {
	api := &fakeModerationAPI{
		resp: openai.ModerationResponse{
			Results: []openai.Result{{
				CategoryScores: openai.ResultCategoryScores{
					Hate:     0.06, // above 0.05 threshold
					Violence: 0.20, // below 0.40 threshold
				},
			}},
		},
	}
	m := NewModerationAdapter(api, "omni-moderation-latest", nil, nil)

	got, err := m.Moderate(context.Background(), "some borderline message")
	require.NoError(t, err)
	assert.True(t, got.Flagged)
	assert.Equal(t, []string{"hate"}, got.FlaggedCategories)
}

func TestModerateCleanMessage(t *testing.T) {
	api := &fakeModerationAPI{
		resp: openai.ModerationResponse{
			Results: []openai.Result{{CategoryScores: openai.ResultCategoryScores{}}},
		},
	}
	m := NewModerationAdapter(api, "omni-moderation-latest", nil, nil)

	got, err := m.Moderate(context.Background(), "What is the penalty for estafa?")
	require.NoError(t, err)
	assert.False(t, got.Flagged)
	assert.Empty(t, got.FlaggedCategories)
}

func TestModerateExternalFailureReturnsError(t *testing.T) {
	api := &fakeModerationAPI{err: errors.New("upstream timeout")}
	m := NewModerationAdapter(api, "omni-moderation-latest", nil, nil)

	_, err := m.Moderate(context.Background(), "What is the penalty for estafa?")
	assert.Error(t, err)
}

func TestModerateNilClientRunsPreFilterOnly(t *testing.T) {
	m := NewModerationAdapter(nil, "", nil, nil)

	got, err := m.Moderate(context.Background(), "What is the penalty for estafa?")
	require.NoError(t, err)
	assert.False(t, got.Flagged)
}
