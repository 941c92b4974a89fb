package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/raphaelgruber/voxchat/internal/audio"
	"github.com/raphaelgruber/voxchat/internal/models"
	"github.com/raphaelgruber/voxchat/internal/service"
	"github.com/spf13/cobra"
)

var (
	sendModel        string
	sendLanguage     string
	sendConversation string
)

var sendCmd = &cobra.Command{
	Use:   "send <file.wav>",
	Short: "Run one exchange with a recorded WAV file",
	Long: `Send a 16-bit PCM WAV file to a model as if it had just been recorded.
The exchange is stored in a new conversation, or appended to --conversation.

Examples:
  voxchat send hello.wav --model moshi --language fr
  voxchat send hello.wav --conversation <conversation-id>`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendModel, "model", "m", string(models.ModelCSM), "speech model")
	sendCmd.Flags().StringVarP(&sendLanguage, "language", "l", models.DefaultLanguage, "language code")
	sendCmd.Flags().StringVarP(&sendConversation, "conversation", "c", "", "append to this conversation")
}

// fileRecorder replays one clip loaded from disk.
type fileRecorder struct {
	mu        sync.Mutex
	clip      *audio.Clip
	recording bool
}

func (r *fileRecorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	return nil
}

func (r *fileRecorder) Stop() (*audio.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil, nil
	}
	r.recording = false
	return r.clip, nil
}

func (r *fileRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func loadClip(path string) (*audio.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format, pcm, err := audio.ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &audio.Clip{Data: data, MIMEType: audio.MIMETypeWAV, Duration: format.Duration(int64(len(pcm)))}, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	owner, err := requireOwner()
	if err != nil {
		return err
	}
	model, err := models.ParseModelName(sendModel)
	if err != nil {
		return err
	}
	clip, err := loadClip(args[0])
	if err != nil {
		return fmt.Errorf("load recording: %w", err)
	}

	ctx := context.Background()
	manager := service.NewConversationManager(apiClient, owner, logger)
	if sendConversation != "" {
		if err := manager.SwitchTo(ctx, sendConversation); err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
	}

	session := service.NewSession(service.SessionDeps{
		Recorder:   &fileRecorder{clip: clip},
		Gateway:    apiClient,
		Manager:    manager,
		Aggregator: service.NewAggregator(apiClient, owner, logger),
		Logger:     logger,
	}, owner, model, sendLanguage)

	if err := session.StartRecording(ctx); err != nil {
		return err
	}
	res, err := session.StopAndSubmit(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Conversation: %s\n\n", res.ConversationID)
	for _, m := range manager.Messages() {
		fmt.Fprintln(out, formatMessage(m))
	}
	fmt.Fprintf(out, "\nLatency %.0fms (backend %.0fms), quality %.2f, expressivity %.2f (placeholder scores)\n",
		res.Submit.LatencyMs, res.Submit.BackendLatencyMs, res.Scores.Quality, res.Scores.Expressivity)
	if res.Submit.AudioURL != "" {
		fmt.Fprintf(out, "Reply audio: %s\n", res.Submit.AudioURL)
	}
	if res.OutcomeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: performance not recorded: %v\n", res.OutcomeErr)
	}
	if res.StatsErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: stats unavailable: %v\n", res.StatsErr)
	}
	return nil
}
