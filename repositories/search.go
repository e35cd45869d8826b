package repositories

import (
	"context"
	"log/slog"
	"strconv"

	"chat-relay/domain"

	"github.com/blugelabs/bluge"
)

// SearchIndex maintains a full-text index over message content so a chat
// history can be searched without scanning the KV store.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Index adds or replaces one message document. Only TEXT content is
// worth indexing; media messages carry their searchable part in Content
// anyway (caption or file name) so everything goes in.
func (s *SearchIndex) Index(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("chat", strconv.FormatInt(int64(msg.ChatID), 10))).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue())
	return s.writer.Update(doc.ID(), doc)
}

// Search runs a match query over one chat's messages, best first.
func (s *SearchIndex) Search(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.SearchHit, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("failed to close index reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(strconv.FormatInt(int64(chatID), 10)).SetField("chat")).
		AddMust(bluge.NewMatchQuery(query).SetField("content"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var hits []domain.SearchHit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := domain.SearchHit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "content":
				hit.Content = string(value)
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
