package guardrails

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/povarna/generative-ai-agents/guard-agent/internal/config"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm"
	"github.com/povarna/generative-ai-agents/guard-agent/internal/llm/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testClassifierConfig() config.ClassifierConfig {
	return config.ClassifierConfig{
		Enabled:       true,
		Timeout:       time.Second,
		MaxTokens:     60,
		Temperature:   0.1,
		CacheSize:     10,
		BlockedTopics: []string{"personal medical advice"},
	}
}

func TestTopicClassifier_CachesVerdicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.LLMRequest) (*llm.LLMResponse, error) {
			assert.Contains(t, req.SystemPrompt, "personal medical advice")
			assert.Contains(t, req.Prompt, "what medicine should I take")
			assert.Equal(t, 60, req.MaxTokens)
			assert.Equal(t, 0.1, req.Temperature)
			return &llm.LLMResponse{Content: "DECISION: BLOCK\nREASON: Asks for medical advice."}, nil
		}).
		Times(1)

	classifier := NewTopicClassifier(client, testClassifierConfig(), testLogger())

	first := classifier.Classify(context.Background(), "what medicine should I take")
	assert.Equal(t, DecisionBlock, first.Decision)
	assert.Equal(t, "Asks for medical advice.", first.Reason)
	assert.False(t, first.Cached)

	second := classifier.Classify(context.Background(), "  What medicine should I take ")
	assert.Equal(t, DecisionBlock, second.Decision)
	assert.True(t, second.Cached)

	stats := classifier.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Size)
}

func TestTopicClassifier_FailsOpen(t *testing.T) {
	tests := []struct {
		name  string
		setup func(client *mocks.MockLLMClient)
	}{
		{
			name: "network error",
			setup: func(client *mocks.MockLLMClient) {
				client.EXPECT().
					InvokeModel(gomock.Any(), gomock.Any()).
					Return(nil, errors.New("connection refused")).
					Times(2)
			},
		},
		{
			name: "timeout",
			setup: func(client *mocks.MockLLMClient) {
				client.EXPECT().
					InvokeModel(gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, _ llm.LLMRequest) (*llm.LLMResponse, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					}).
					Times(2)
			},
		},
		{
			name: "unparseable response",
			setup: func(client *mocks.MockLLMClient) {
				client.EXPECT().
					InvokeModel(gomock.Any(), gomock.Any()).
					Return(&llm.LLMResponse{Content: "I think this is probably fine"}, nil).
					Times(2)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockLLMClient(ctrl)
			tt.setup(client)

			cfg := testClassifierConfig()
			cfg.Timeout = 20 * time.Millisecond
			classifier := NewTopicClassifier(client, cfg, testLogger())

			for i := 0; i < 2; i++ {
				verdict := classifier.Classify(context.Background(), "should I buy bitcoin")
				assert.Equal(t, DecisionAllow, verdict.Decision)
				assert.True(t, verdict.FailedOpen)
				assert.Error(t, verdict.Err)
			}

			assert.Equal(t, 0, classifier.CacheStats().Size, "fail-open results must not be cached")
		})
	}
}

func TestTopicClassifier_CoalescesConcurrentCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	release := make(chan struct{})
	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, llm.LLMRequest) (*llm.LLMResponse, error) {
			<-release
			return &llm.LLMResponse{Content: "DECISION: ALLOW\nREASON: Data question."}, nil
		}).
		Times(1)

	classifier := NewTopicClassifier(client, testClassifierConfig(), testLogger())

	const callers = 10
	verdicts := make([]Verdict, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdicts[i] = classifier.Classify(context.Background(), "count orders by month")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, verdict := range verdicts {
		assert.Equal(t, DecisionAllow, verdict.Decision)
		assert.False(t, verdict.FailedOpen)
	}

	stats := classifier.CacheStats()
	assert.Equal(t, int64(1), stats.Misses, "waiters on a shared call are not misses")
	assert.Equal(t, int64(0), stats.Hits)
}

func TestTopicClassifier_SharedCallSurvivesCancelledCaller(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ llm.LLMRequest) (*llm.LLMResponse, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &llm.LLMResponse{Content: "DECISION: BLOCK\nREASON: Asks for medical advice."}, nil
		}).
		Times(1)

	classifier := NewTopicClassifier(client, testClassifierConfig(), testLogger())
	text := "what medicine should I take"

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		classifier.Classify(firstCtx, text)
	}()
	<-started

	var second Verdict
	go func() {
		defer wg.Done()
		second = classifier.Classify(context.Background(), text)
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, DecisionBlock, second.Decision)
	assert.False(t, second.FailedOpen)
	assert.Equal(t, 1, classifier.CacheStats().Size)
}

func TestTopicClassifier_RateLimitFailsOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "DECISION: ALLOW\nREASON: ok"}, nil).
		Times(1)

	cfg := testClassifierConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	cfg.Timeout = 50 * time.Millisecond
	classifier := NewTopicClassifier(client, cfg, testLogger())

	first := classifier.Classify(context.Background(), "first question")
	assert.False(t, first.FailedOpen)

	second := classifier.Classify(context.Background(), "second question")
	assert.Equal(t, DecisionAllow, second.Decision)
	assert.True(t, second.FailedOpen)
}

func TestTopicClassifier_EmptyTextSkipsCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	classifier := NewTopicClassifier(client, testClassifierConfig(), testLogger())

	verdict := classifier.Classify(context.Background(), "   ")
	assert.Equal(t, DecisionAllow, verdict.Decision)
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		want       Decision
		wantReason string
		wantErr    bool
	}{
		{"allow", "DECISION: ALLOW\nREASON: Data analysis request.", DecisionAllow, "Data analysis request.", false},
		{"block", "DECISION: BLOCK\nREASON: Medical advice.", DecisionBlock, "Medical advice.", false},
		{"lower case and spacing", "  decision:   block \n reason: political", DecisionBlock, "political", false},
		{"brackets", "DECISION: [ALLOW]\nREASON: fine", DecisionAllow, "fine", false},
		{"preamble", "Sure.\nDECISION: BLOCK\nREASON: investing", DecisionBlock, "investing", false},
		{"bare decision", "BLOCK", DecisionBlock, "", false},
		{"bare decision with punctuation", "Allow.", DecisionAllow, "", false},
		{"echoed template", "DECISION: [ALLOW or BLOCK]", "", "", true},
		{"garbage", "The user asks about sales", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := parseClassification(tt.response)
			if tt.wantErr {
				require.ErrorIs(t, err, errUnparseable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict.Decision)
			assert.Equal(t, tt.wantReason, verdict.Reason)
		})
	}
}

func TestLLMTopicValidator(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockLLMClient(ctrl)

	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(&llm.LLMResponse{Content: "DECISION: BLOCK\nREASON: Voting advice."}, nil)
	client.EXPECT().
		InvokeModel(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("throttled"))

	validator := NewLLMTopicValidator(NewTopicClassifier(client, testClassifierConfig(), testLogger()), "off topic")
	assert.Equal(t, CostExpensive, validator.Cost())

	result, err := validator.Validate(context.Background(), "who should I vote for")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFail, result.Outcome)
	assert.Equal(t, ViolationTopic, result.Category)
	assert.Equal(t, "off topic", result.Message)

	_, err = validator.Validate(context.Background(), "another question")
	assert.Error(t, err, "classifier failure surfaces as an error so the chain fails open")
}
