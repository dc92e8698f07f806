package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/groundchat/pkg/adapter"
	"github.com/zen-systems/groundchat/pkg/catalog"
	"github.com/zen-systems/groundchat/pkg/citation"
	"github.com/zen-systems/groundchat/pkg/config"
	"github.com/zen-systems/groundchat/pkg/conversation"
	"github.com/zen-systems/groundchat/pkg/grounding"
)

func songs() []catalog.Record {
	song := func(title, authors, country string, year int64) catalog.Record {
		return catalog.NewRecord(
			catalog.Field{Name: "title", Value: title},
			catalog.Field{Name: "authors", Value: authors},
			catalog.Field{Name: "country", Value: country},
			catalog.Field{Name: "year", Value: year},
		)
	}
	return []catalog.Record{
		song("Imagine", "John Lennon", "UK", 1971),
		song("Let It Be", "Paul McCartney", "UK", 1970),
		song("Garota de Ipanema", "Tom Jobim, Vinicius de Moraes", "Brazil", 1962),
	}
}

func str(s string) *string { return &s }

func settings() config.Grounding {
	return config.Default().Grounding
}

func newBot(t *testing.T, a adapter.Adapter, src catalog.Source, opts ...Option) *Bot {
	t.Helper()
	b, err := New(a, src, settings(), opts...)
	require.NoError(t, err)
	return b
}

func TestChatGroundedReply(t *testing.T) {
	mock := adapter.NewMockAdapter(
		adapter.WithMockParams("something by Lennon", catalog.SearchParams{Authors: str("lennon")}),
	)
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "something by Lennon")
	require.Nil(t, ex.Err)
	assert.Empty(t, ex.Degraded)
	assert.Equal(t, `You might like "Imagine".`, ex.Reply)
	assert.Equal(t, grounding.Accepted, ex.Outcome)
	require.Len(t, ex.Candidates, 1)
	require.Len(t, ex.Citations, 1)
	assert.Equal(t, 0, ex.Citations[0].Index)
	assert.Equal(t, citation.Explicit, ex.Citations[0].Provenance)
	assert.Equal(t, "Imagine", ex.Citations[0].Reference)

	history := b.Session().State.History()
	require.Len(t, history, 2)
	assert.Equal(t, conversation.Turn{Author: conversation.User, Message: "something by Lennon"}, history[0])
	assert.Equal(t, ex.Reply, history[1].Message)
	assert.Equal(t, ex.Citations, history[1].Citations)

	reqs := mock.GenerateRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, settings().PromptBehavior, reqs[0].Behavior)
	assert.Equal(t, "something by Lennon", reqs[0].UserMessage)
	assert.True(t, reqs[0].Extraction.Found)
}

func TestChatSuppressesUngroundedQuote(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(map[string]string{
		"surprise me": `Try "Bohemian Rhapsody".`,
	}, adapter.WithMockParams("surprise me", catalog.SearchParams{}))
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "surprise me")
	require.Nil(t, ex.Err)
	assert.Equal(t, grounding.Ungrounded, ex.Outcome)
	assert.Equal(t, grounding.DefaultNoCitationMessage, ex.Reply)
	assert.Empty(t, ex.Citations)
	// empty params stage the whole catalog
	assert.Len(t, ex.Candidates, 3)

	history := b.Session().State.History()
	require.Len(t, history, 2)
	assert.Equal(t, grounding.DefaultNoCitationMessage, history[1].Message)
}

func TestChatFilterDisabled(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(map[string]string{
		"surprise me": `Try "Bohemian Rhapsody".`,
	})
	s := settings()
	s.FilterRepliesWithoutCitations = false
	b, err := New(mock, catalog.NewStatic(songs(), 0), s)
	require.NoError(t, err)

	ex := b.Chat(context.Background(), "surprise me")
	assert.Equal(t, grounding.Accepted, ex.Outcome)
	assert.Equal(t, `Try "Bohemian Rhapsody".`, ex.Reply)
}

func TestChatGenerationFailure(t *testing.T) {
	boom := &adapter.AdapterError{Provider: "mock", Status: 503, Err: errors.New("unavailable")}
	mock := adapter.NewMockAdapter(adapter.WithMockErrors(nil, boom))
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "anything")
	require.NotNil(t, ex.Err)
	assert.Equal(t, GeneratingReply, ex.Err.Stage)
	assert.ErrorIs(t, ex.Err, boom)
	assert.Equal(t, Failed, ex.Outcome)
	assert.Equal(t, grounding.DefaultGeneralMessage, ex.Reply)
	assert.Empty(t, ex.Citations)

	history := b.Session().State.History()
	require.Len(t, history, 2)
	assert.Equal(t, grounding.DefaultGeneralMessage, history[1].Message)
	assert.Empty(t, history[1].Citations)

	// the next exchange runs normally
	b2 := newBot(t, adapter.NewMockAdapter(), catalog.NewStatic(songs(), 0), WithSession(b.Session()))
	ex = b2.Chat(context.Background(), "hello")
	assert.Nil(t, ex.Err)
	assert.Equal(t, 4, b.Session().State.Len())
}

func TestChatExtractionFailure(t *testing.T) {
	mock := adapter.NewMockAdapter(adapter.WithMockErrors(errors.New("connection reset"), nil))
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "anything")
	require.NotNil(t, ex.Err)
	assert.Equal(t, ExtractingParams, ex.Err.Stage)
	assert.Equal(t, grounding.DefaultGeneralMessage, ex.Reply)
	assert.Empty(t, mock.GenerateRequests())
	assert.Equal(t, 2, b.Session().State.Len())
}

func TestChatMalformedParamsDegrades(t *testing.T) {
	malformed := fmt.Errorf("%w: no JSON object", adapter.ErrMalformedParams)
	mock := adapter.NewMockAdapter(adapter.WithMockErrors(malformed, nil))
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "hi there")
	assert.Nil(t, ex.Err)
	require.Len(t, ex.Degraded, 1)
	assert.Equal(t, ExtractingParams, ex.Degraded[0].Stage)
	assert.Empty(t, ex.Candidates)
	assert.Equal(t, "Could you tell me more about the music you like?", ex.Reply)
	assert.Equal(t, grounding.Accepted, ex.Outcome)
}

func TestChatLookupFailureDegrades(t *testing.T) {
	mock := adapter.NewMockAdapter(
		adapter.WithMockParams("bossa nova", catalog.SearchParams{Genre: str("bossa nova")}),
	)
	src := catalog.SourceFunc{ID: "broken", Fn: func(context.Context, catalog.SearchParams) ([]catalog.Record, error) {
		return nil, errors.New("database is locked")
	}}
	b := newBot(t, mock, src)

	ex := b.Chat(context.Background(), "bossa nova")
	assert.Nil(t, ex.Err)
	require.Len(t, ex.Degraded, 1)
	assert.Equal(t, LookingUpCorpus, ex.Degraded[0].Stage)
	assert.ErrorIs(t, ex.Degraded[0], catalog.ErrLookup)
	assert.Empty(t, ex.Candidates)
	assert.Equal(t, 2, b.Session().State.Len())
}

func TestChatAccumulatePolicy(t *testing.T) {
	mock := adapter.NewMockAdapter(
		adapter.WithMockParams("something by Lennon", catalog.SearchParams{Authors: str("lennon")}),
		adapter.WithMockParams("now from Brazil", catalog.SearchParams{Country: str("brazil")}),
	)
	b := newBot(t, mock, catalog.NewStatic(songs(), 0), WithStagingPolicy(conversation.Accumulate))
	assert.Equal(t, conversation.Accumulate, b.Session().State.Policy())

	b.Chat(context.Background(), "something by Lennon")
	ex := b.Chat(context.Background(), "now from Brazil")
	require.Len(t, ex.Candidates, 2)
	assert.Equal(t, "Garota de Ipanema", ex.Candidates[0].Text("title"))
	assert.Equal(t, "Imagine", ex.Candidates[1].Text("title"))

	// nothing extracted: the staged set is carried forward
	ex = b.Chat(context.Background(), "ok")
	assert.Len(t, ex.Candidates, 2)
}

func TestChatReplacePolicyClearsCandidates(t *testing.T) {
	mock := adapter.NewMockAdapter(
		adapter.WithMockParams("something by Lennon", catalog.SearchParams{Authors: str("lennon")}),
	)
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "something by Lennon")
	assert.Len(t, ex.Candidates, 1)
	ex = b.Chat(context.Background(), "ok")
	assert.Empty(t, ex.Candidates)
}

func TestChatMaxCandidates(t *testing.T) {
	mock := adapter.NewMockAdapter(adapter.WithMockParams("anything", catalog.SearchParams{}))
	s := settings()
	s.MaxCandidates = 2
	b, err := New(mock, catalog.NewStatic(songs(), 0), s)
	require.NoError(t, err)

	ex := b.Chat(context.Background(), "anything")
	assert.Len(t, ex.Candidates, 2)
}

func TestChatCollapsesWhitespace(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(map[string]string{
		"hi": "  You might\n\n like\t\"Imagine\".  ",
	}, adapter.WithMockParams("hi", catalog.SearchParams{}))
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "hi")
	assert.Equal(t, `You might like "Imagine".`, ex.Reply)
	require.NotEmpty(t, ex.Citations)
	assert.Equal(t, 0, ex.Citations[0].Index)
}

func TestChatBlankReplyFails(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(map[string]string{"hi": " \n "})
	b := newBot(t, mock, catalog.NewStatic(songs(), 0))

	ex := b.Chat(context.Background(), "hi")
	require.NotNil(t, ex.Err)
	assert.ErrorIs(t, ex.Err, adapter.ErrNoText)
	assert.Equal(t, grounding.DefaultGeneralMessage, ex.Reply)
}

func TestHistoryAlternation(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			var opts []adapter.MockOption
			if strict {
				opts = append(opts, adapter.WithStrictAlternation())
			}
			mock := adapter.NewMockAdapter(opts...)
			b := newBot(t, mock, catalog.NewStatic(songs(), 0))
			b.Session().State.Record(conversation.User, "hello?")

			b.Chat(context.Background(), "anyone there")
			reqs := mock.ExtractRequests()
			require.Len(t, reqs, 1)
			if strict {
				assert.Empty(t, reqs[0].History)
			} else {
				assert.Equal(t, []adapter.Message{{Role: adapter.RoleUser, Content: "hello?"}}, reqs[0].History)
			}
			// the log is never truncated
			assert.Equal(t, 3, b.Session().State.Len())
		})
	}
}

func TestNewValidation(t *testing.T) {
	src := catalog.NewStatic(songs(), 0)
	_, err := New(nil, src, settings())
	require.Error(t, err)

	_, err = New(adapter.NewMockAdapter(), nil, settings())
	require.Error(t, err)

	s := settings()
	s.CitationRegex = "(["
	_, err = New(adapter.NewMockAdapter(), src, s)
	require.Error(t, err)

	s = settings()
	s.StagingPolicy = "append"
	_, err = New(adapter.NewMockAdapter(), src, s)
	require.Error(t, err)
}

func TestChatAll(t *testing.T) {
	src := catalog.NewStatic(songs(), 0)
	params := adapter.WithMockParams("something by Lennon", catalog.SearchParams{Authors: str("lennon")})
	bots := []*Bot{
		newBot(t, adapter.NewMockAdapter(params), src),
		newBot(t, adapter.NewMockAdapter(adapter.WithMockErrors(nil, errors.New("down"))), src),
	}

	exchanges := ChatAll(context.Background(), bots, "something by Lennon")
	require.Len(t, exchanges, 2)
	assert.Equal(t, grounding.Accepted, exchanges[0].Outcome)
	assert.Equal(t, Failed, exchanges[1].Outcome)
	for _, b := range bots {
		assert.Equal(t, 2, b.Session().State.Len())
	}
}

func TestSimulate(t *testing.T) {
	src := catalog.NewStatic(songs(), 0)
	scripts := []Script{
		{UserID: "1", Messages: []string{"hi", "something by Lennon"}},
		{UserID: "2", Messages: []string{"hello"}},
	}
	bots, err := Simulate(context.Background(), scripts, 1, func(Script) (*Bot, error) {
		mock := adapter.NewMockAdapter(
			adapter.WithMockParams("something by Lennon", catalog.SearchParams{Authors: str("lennon")}),
		)
		return New(mock, src, settings())
	})
	require.NoError(t, err)
	require.Len(t, bots, 2)
	assert.Equal(t, 4, bots[0].Session().State.Len())
	assert.Equal(t, 2, bots[1].Session().State.Len())
	for _, b := range bots {
		assert.False(t, b.Session().Active())
	}
}
