package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Nexavor/yidongwagnpan/internal/config"
	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramBackend stores payloads as documents in a channel. The chat message
// id is the only handle the API offers for deletion, so it travels back to the
// caller as TgMessageID and is persisted alongside the file row.
type TelegramBackend struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	http   *http.Client
}

func NewTelegramBackend(cfg config.TelegramConfig) (*TelegramBackend, error) {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram storage requires botToken and chatId")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramBackend{
		bot:    bot,
		chatID: cfg.ChatID,
		http:   http.DefaultClient,
	}, nil
}

func (t *TelegramBackend) Upload(ctx context.Context, r io.Reader, size int64, fileName, contentType string, userID, folderID uint) (*UploadResult, error) {
	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FileReader{
		Name:   fileName,
		Reader: r,
	})
	doc.Caption = fmt.Sprintf("User: %d\nPath: %d/%s", userID, folderID, fileName)

	msg, err := t.bot.Send(doc)
	if err != nil {
		logger.Error("telegram_upload_failed", err, map[string]interface{}{
			"file_name": fileName,
			"size":      size,
		})
		return nil, err
	}
	if msg.Document == nil {
		return nil, fmt.Errorf("telegram upload returned no document")
	}

	result := &UploadResult{FileID: msg.Document.FileID}
	if msg.Document.Thumbnail != nil {
		thumb := msg.Document.Thumbnail.FileID
		result.ThumbFileID = &thumb
	}
	ref := int64(msg.MessageID)
	result.TgMessageID = &ref

	logger.Info("telegram_upload_success", map[string]interface{}{
		"file_name":  fileName,
		"size":       size,
		"message_id": msg.MessageID,
	})
	return result, nil
}

func (t *TelegramBackend) Download(ctx context.Context, fileID string, userID uint) (*Object, error) {
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		logger.Error("telegram_getfile_failed", err, map[string]interface{}{"file_id": fileID})
		return nil, ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(t.bot.Token), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("telegram download: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Object{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		ETag:          "tg-" + fileID[:min(len(fileID), 10)],
	}, nil
}

func (t *TelegramBackend) Remove(ctx context.Context, files []RemovalFile, userID uint) error {
	for _, f := range files {
		if f.TgMessageID == nil {
			// Rows imported before message refs were recorded cannot be
			// physically deleted; skip them.
			continue
		}
		if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(t.chatID, int(*f.TgMessageID))); err != nil {
			logger.Error("telegram_delete_failed", err, map[string]interface{}{
				"message_ref": *f.TgMessageID,
				"logical_id":  f.MessageID,
			})
		}
	}
	return nil
}

// List returns nothing: the bot API cannot enumerate a chat's documents.
func (t *TelegramBackend) List(ctx context.Context, prefix string) ([]RemoteObject, error) {
	return []RemoteObject{}, nil
}
