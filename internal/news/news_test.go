package news

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/spectrumpost/internal/runctx"
	"github.com/deusflow/spectrumpost/internal/source"
)

type setIndex map[string]bool

func (s setIndex) Contains(id string) bool { return s[id] }

func testRun() *runctx.Run {
	return runctx.New(time.Date(2025, time.July, 22, 9, 30, 0, 0, time.UTC), time.UTC, nil)
}

func TestNormalizeFeedRecordsSkipFreshnessGate(t *testing.T) {
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []source.Record{
		{Link: "https://example.com/a#comments", Title: "  A   story ", PublishedAt: &old},
		{Link: "https://example.com/b", Title: "B", Author: "Jane"},
	}
	got := Normalize(testRun(), records)
	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/a", got[0].Identifier)
	assert.Equal(t, "A story", got[0].Title)
	assert.Equal(t, UnknownAuthor, got[0].Author)
	assert.Equal(t, "2020-01-01", got[0].PublishedDate())
	assert.Equal(t, "Jane", got[1].Author)
	assert.Equal(t, "", got[1].PublishedDate())
}

func TestNormalizeRejectsUnusableRecords(t *testing.T) {
	records := []source.Record{
		{Link: "", Title: "No link"},
		{Link: "https://example.com/x", Title: "   "},
		{Link: "/relative/path", Title: "Relative"},
		{Link: "mailto:a@b.c", Title: "Mail"},
	}
	assert.Empty(t, Normalize(testRun(), records))
}

func TestNormalizeSameDayGate(t *testing.T) {
	records := []source.Record{
		{Link: "https://spectrum.example/today", Title: "Today", DateText: "17h", ImpreciseDate: true},
		{Link: "https://spectrum.example/abs", Title: "Abs", DateText: "22 Jul 2025", ImpreciseDate: true},
		{Link: "https://spectrum.example/yday", Title: "Yday", DateText: "Yesterday", ImpreciseDate: true},
		{Link: "https://spectrum.example/old", Title: "Old", DateText: "01 Jan 2024", ImpreciseDate: true},
		{Link: "https://spectrum.example/junk", Title: "Junk", DateText: "soon", ImpreciseDate: true},
		{Link: "https://spectrum.example/empty", Title: "Empty", ImpreciseDate: true},
	}
	got := Normalize(testRun(), records)
	require.Len(t, got, 2)
	assert.Equal(t, "https://spectrum.example/today", got[0].Identifier)
	assert.Equal(t, "2025-07-22", got[0].PublishedDate())
	assert.Equal(t, "https://spectrum.example/abs", got[1].Identifier)
}

func TestDuplicatesCollapseToOneEntry(t *testing.T) {
	records := []source.Record{
		{Link: "https://example.com/dup", Title: "First", Topic: "AI"},
		{Link: "https://example.com/other", Title: "Other"},
		{Link: "https://example.com/dup", Title: "Second", Topic: "Robotics"},
		{Link: "https://example.com/dup#frag", Title: "Third"},
	}
	got := Normalize(testRun(), records)
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].Title)
	assert.Equal(t, "AI", got[0].Topic)

	filtered := Unpublished(got, setIndex{})
	count := 0
	for _, c := range filtered {
		if c.Identifier == "https://example.com/dup" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestUnpublishedPreservesOrder(t *testing.T) {
	var cands []Candidate
	idx := setIndex{}
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("https://example.com/%d", i)
		cands = append(cands, Candidate{Identifier: id, Title: id})
		if i%4 == 1 {
			idx[id] = true
		}
	}
	got := Unpublished(cands, idx)
	require.Len(t, got, 9)
	assert.Equal(t, "https://example.com/0", got[0].Identifier)
	assert.Equal(t, "https://example.com/2", got[1].Identifier)
	for _, c := range got {
		assert.False(t, idx[c.Identifier])
	}
	assert.Len(t, cands, 12, "input must not be mutated")
}
