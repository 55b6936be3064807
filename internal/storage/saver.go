package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Tradcast/Backend/internal/infrastructure"
	"github.com/Tradcast/Backend/internal/model"
)

const resultSubjectPrefix = "game.result."

// NatsSink publishes finished-session reports onto the GAME stream.
// It is the session side of the persistence pipeline.
type NatsSink struct {
	js nats.JetStreamContext
}

func NewNatsSink(js nats.JetStreamContext) *NatsSink {
	return &NatsSink{js: js}
}

func (s *NatsSink) Publish(result model.SessionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	_, err = s.js.Publish(resultSubjectPrefix+result.FID, data)
	return err
}

// ResultSaver is the consumer side: it drains the GAME stream into
// Postgres. A save failure is logged and the message left unacked for
// redelivery.
type ResultSaver struct {
	js     nats.JetStreamContext
	store  *Store
	logger *zap.Logger
}

func NewResultSaver(js nats.JetStreamContext, store *Store, logger *zap.Logger) *ResultSaver {
	return &ResultSaver{js: js, store: store, logger: logger}
}

func (r *ResultSaver) Run(ctx context.Context) error {
	_, err := r.js.Subscribe(resultSubjectPrefix+"*", func(msg *nats.Msg) {
		var result model.SessionResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			r.logger.Error("failed to unmarshal session result", zap.Error(err))
			msg.Ack()
			return
		}

		if err := r.store.SaveSessionResult(ctx, result); err != nil {
			infrastructure.SessionResultsSaved.WithLabelValues("error").Inc()
			r.logger.Error("failed to save session result",
				zap.String("fid", result.FID),
				zap.String("session_id", result.SessionID),
				zap.Error(err))
			return
		}

		infrastructure.SessionResultsSaved.WithLabelValues("ok").Inc()
		r.logger.Info("session result saved",
			zap.String("fid", result.FID),
			zap.String("session_id", result.SessionID))
		msg.Ack()
	}, nats.Durable("result_saver"), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("subscribe to session results: %w", err)
	}

	r.logger.Info("session result saver started")
	return nil
}
