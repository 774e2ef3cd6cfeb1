package timestamps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlog/api/internal/signature"
)

func TestResolveEarliestAndLatest(t *testing.T) {
	res, err := Resolve([]Candidate{
		{Source: SourceBlock, CreatedAt: 3000, UpdatedAt: 9000},
		{Source: SourceSignature, CreatedAt: 1000, UpdatedAt: 4000},
		{Source: SourceFallback, CreatedAt: 2000},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.CreatedAt)
	assert.Equal(t, SourceSignature, res.CreatedFrom)
	assert.Equal(t, int64(9000), res.UpdatedAt)
	assert.Equal(t, SourceBlock, res.UpdatedFrom)
}

func TestResolveIgnoresZeroes(t *testing.T) {
	res, err := Resolve([]Candidate{
		{Source: SourceBlock},
		{Source: SourceEnvelope, CreatedAt: 5000},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), res.CreatedAt)
	assert.Equal(t, int64(5000), res.UpdatedAt)
}

func TestResolveUpdateOnly(t *testing.T) {
	res, err := Resolve([]Candidate{{Source: SourceBlock, UpdatedAt: 7000}})
	require.NoError(t, err)
	assert.Equal(t, int64(7000), res.CreatedAt)
	assert.Equal(t, int64(7000), res.UpdatedAt)
}

func TestResolveReportsMissing(t *testing.T) {
	res, err := Resolve(nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Zero(t, res.CreatedAt)

	_, err = Resolve([]Candidate{{Source: SourceBlock}, {Source: SourceFallback}})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestFromSignature(t *testing.T) {
	text := "notes\n\n---\n由 🔮 4DNote 创建于 2025-03-01 09:00:00\n由 📧 Outlook 最后修改于 2025/3/2 8:30:00"
	got := FromSignature(text, time.UTC)
	require.True(t, got.Found)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli(), got.CreatedAt)
	assert.Equal(t, time.Date(2025, 3, 2, 8, 30, 0, 0, time.UTC).UnixMilli(), got.UpdatedAt)
	assert.Equal(t, signature.OriginLocal, got.CreatorOrigin)
	assert.Equal(t, signature.OriginExternal, got.ModifierOrigin)
	assert.Equal(t, SourceSignature, got.Candidate().Source)

	assert.False(t, FromSignature("no trailer", time.UTC).Found)
}

func TestLeadingTimestamp(t *testing.T) {
	ts, rest, ok := LeadingTimestamp("2025-03-01 09:05:30 Call Alice", time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 5, 30, 0, time.UTC).UnixMilli(), ts)
	assert.Equal(t, "Call Alice", rest)

	_, rest, ok = LeadingTimestamp("Buy milk", time.UTC)
	assert.False(t, ok)
	assert.Equal(t, "Buy milk", rest)

	_, _, ok = LeadingTimestamp("2025-02-30 09:00:00", time.UTC)
	assert.False(t, ok)
}

func TestHasLeadingTimestamps(t *testing.T) {
	assert.True(t, HasLeadingTimestamps("intro\n2025-03-01 09:00:00\nBuy milk"))
	assert.False(t, HasLeadingTimestamps("meeting at 2025-03-01 09:00:00"))
	assert.False(t, HasLeadingTimestamps("body\n---\n由 🔮 4DNote 创建于 2025-03-01 09:00:00"))
}
