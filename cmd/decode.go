package cmd

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trovobridge/pkg/chatproto"
	"trovobridge/pkg/frame"
)

var decodeHex bool

var decodeCmd = &cobra.Command{
	Use:   "decode [payload...]",
	Short: "Decode captured chat frame payloads",
	Long: "Decodes base64 (or hex, with --hex) frame payloads as copied from browser " +
		"devtools and prints one JSON object per payload. Payloads are read from stdin when no arguments are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return decodePayloads(cmd.InOrStdin(), cmd.OutOrStdout(), args, decodeHex)
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeHex, "hex", false, "payloads are hex instead of base64")
}

type decodedFrame struct {
	Opcode      uint16          `json:"opcode"`
	TotalLength uint32          `json:"total_length"`
	DataLength  uint32          `json:"data_length"`
	BlobLength  int             `json:"blob_length"`
	Message     *decodedMessage `json:"message,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type decodedMessage struct {
	ID        string     `json:"id,omitempty"`
	ChannelID string     `json:"channel_id,omitempty"`
	Author    string     `json:"author"`
	AuthorID  string     `json:"author_id,omitempty"`
	Content   string     `json:"content"`
	Type      int32      `json:"type"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	IsHistory bool       `json:"is_history"`
}

func decodePayloads(in io.Reader, out io.Writer, args []string, isHex bool) error {
	payloads := args
	if len(payloads) == 0 {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				payloads = append(payloads, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read payloads: %w", err)
		}
	}
	if len(payloads) == 0 {
		return fmt.Errorf("no payloads to decode")
	}

	enc := json.NewEncoder(out)
	failed := 0
	for _, payload := range payloads {
		result := decodePayload(strings.TrimSpace(payload), isHex)
		if result.Error != "" {
			failed++
		}
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d payloads failed to decode", failed, len(payloads))
	}
	return nil
}

func decodePayload(payload string, isHex bool) decodedFrame {
	var (
		f   frame.Frame
		err error
	)
	if isHex {
		var buf []byte
		buf, err = hex.DecodeString(payload)
		if err == nil {
			f, err = frame.Decode(buf)
		}
	} else {
		f, err = frame.DecodeBase64(payload)
	}
	if err != nil {
		return decodedFrame{Error: err.Error()}
	}

	result := decodedFrame{
		Opcode:      f.Opcode,
		TotalLength: f.TotalLength,
		DataLength:  f.DataLength,
		BlobLength:  len(f.Blob),
	}
	if !f.IsData() {
		return result
	}

	msg, err := chatproto.Parse(f.Blob)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Message = &decodedMessage{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Author:    msg.Author,
		AuthorID:  msg.AuthorID,
		Content:   msg.Content,
		Type:      msg.Type,
		IsHistory: msg.IsHistory,
	}
	if !msg.SentAt.IsZero() {
		sentAt := msg.SentAt.UTC()
		result.Message.SentAt = &sentAt
	}
	return result
}
