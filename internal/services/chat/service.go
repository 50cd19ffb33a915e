// Package chat answers support chat messages from a local knowledge base,
// an external process or Gemini.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/models"
	"github.com/bobmcallan/mfdesk/internal/services/procpool"
)

// Provider names accepted in chat.provider.
const (
	ProviderKnowledge = "knowledge"
	ProviderProcess   = "process"
	ProviderGemini    = "gemini"
)

// Canned replies.
const (
	GreetingReply = "I'm your financial advisor bot. I can help you understand mutual funds, portfolio allocation, and investment procedures."
	NoMatchReply  = "I couldn't find relevant information in my knowledge base."
	matchPrefix   = "Based on the available information: "
)

const searchResults = 3

// Runner executes a command; *procpool.Pool satisfies it.
type Runner interface {
	Run(ctx context.Context, argv []string, stdin []byte) (*procpool.Output, error)
}

// Service implements ChatService
type Service struct {
	provider string
	kb       *KnowledgeBase
	runner   Runner
	command  []string
	gemini   interfaces.GeminiClient
	logger   *common.Logger
}

// Option configures the service
type Option func(*Service)

// WithKnowledgeBase sets the retrieval corpus used by the knowledge and
// gemini providers.
func WithKnowledgeBase(kb *KnowledgeBase) Option {
	return func(s *Service) {
		s.kb = kb
	}
}

// WithProcess sets the runner and command for the process provider.
func WithProcess(runner Runner, command []string) Option {
	return func(s *Service) {
		s.runner = runner
		s.command = command
	}
}

// WithGemini sets the model client for the gemini provider.
func WithGemini(client interfaces.GeminiClient) Option {
	return func(s *Service) {
		s.gemini = client
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a chat service for provider. An empty provider means
// knowledge. The provider's dependency must be supplied through an option.
func NewService(provider string, opts ...Option) (*Service, error) {
	if provider == "" {
		provider = ProviderKnowledge
	}
	s := &Service{
		provider: provider,
		kb:       &KnowledgeBase{},
		logger:   common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch provider {
	case ProviderKnowledge:
	case ProviderProcess:
		if s.runner == nil || len(s.command) == 0 {
			return nil, fmt.Errorf("chat provider %q requires a command", provider)
		}
	case ProviderGemini:
		if s.gemini == nil {
			return nil, fmt.Errorf("chat provider %q requires a Gemini client", provider)
		}
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", provider)
	}
	return s, nil
}

// Provider returns the active provider name.
func (s *Service) Provider() string {
	return s.provider
}

// Reply answers one chat message.
func (s *Service) Reply(ctx context.Context, req models.ChatRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	s.logger.Debug().Str("provider", s.provider).Int("message_len", len(req.Message)).Msg("Chat message received")

	switch s.provider {
	case ProviderProcess:
		return s.replyFromProcess(ctx, req)
	case ProviderGemini:
		return s.replyFromGemini(ctx, req)
	default:
		return s.replyFromKnowledge(req), nil
	}
}

func (s *Service) replyFromKnowledge(req models.ChatRequest) string {
	if s.kb.Len() == 0 {
		return GreetingReply
	}
	matches := s.kb.Search(req.Message, searchResults)
	if len(matches) == 0 {
		return NoMatchReply
	}
	return matchPrefix + strings.Join(matches, "\n")
}

func (s *Service) replyFromProcess(ctx context.Context, req models.ChatRequest) (string, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat input: %w", err)
	}

	out, err := s.runner.Run(ctx, s.command, append(line, '\n'))
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(string(out.Stdout))
	if reply == "" {
		return "", &common.ProcessError{
			Kind:    common.ProcessOutput,
			Command: strings.Join(s.command, " "),
			Stderr:  strings.TrimSpace(string(out.Stderr)),
		}
	}
	return reply, nil
}

func (s *Service) replyFromGemini(ctx context.Context, req models.ChatRequest) (string, error) {
	reply, err := s.gemini.GenerateContent(ctx, buildPrompt(req, s.kb.Search(req.Message, searchResults)))
	if err != nil {
		return "", fmt.Errorf("chat generation failed: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func buildPrompt(req models.ChatRequest, excerpts []string) string {
	var sb strings.Builder
	sb.WriteString("You are a support assistant for a mutual fund distributor. ")
	sb.WriteString("Answer briefly and plainly. Do not give personalised investment advice.\n")

	if len(excerpts) > 0 {
		sb.WriteString("\n## Reference material\n")
		for _, e := range excerpts {
			sb.WriteString("---\n")
			sb.WriteString(e)
			sb.WriteString("\n")
		}
	}
	if req.SelectedContent != "" {
		sb.WriteString("\n## Text the user selected\n")
		sb.WriteString(req.SelectedContent)
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Question\n")
	sb.WriteString(req.Message)
	sb.WriteString("\n")
	return sb.String()
}

// Ensure Service implements ChatService
var _ interfaces.ChatService = (*Service)(nil)
