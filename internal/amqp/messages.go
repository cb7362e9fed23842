package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"zetafin/internal/core"
)

// OCRRequestMessage asks a worker to run OCR for one receipt. It carries
// only what the worker needs to fetch the file; the receipt is reloaded from
// the store before processing.
type OCRRequestMessage struct {
	JobID       string    `json:"jobId"`
	ReceiptID   uuid.UUID `json:"receiptId"`
	UserID      uuid.UUID `json:"userId"`
	FileURL     string    `json:"fileUrl"`
	RequestedAt time.Time `json:"requestedAt"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewOCRRequestMessage(job core.OCRJob) *OCRRequestMessage {
	return &OCRRequestMessage{
		JobID:       job.JobID,
		ReceiptID:   job.ReceiptID,
		UserID:      job.UserID,
		FileURL:     job.FileURL,
		RequestedAt: job.RequestedAt,
		Timestamp:   time.Now(),
	}
}

func (m *OCRRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m *OCRRequestMessage) Job() core.OCRJob {
	return core.OCRJob{
		JobID:       m.JobID,
		ReceiptID:   m.ReceiptID,
		UserID:      m.UserID,
		FileURL:     m.FileURL,
		RequestedAt: m.RequestedAt,
	}
}

func OCRRequestMessageFromJSON(data []byte) (*OCRRequestMessage, error) {
	var msg OCRRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ReceiptID == uuid.Nil {
		return nil, errors.New("message has no receipt id")
	}
	return &msg, nil
}
