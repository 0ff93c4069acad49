package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/qcompat/internal/manifest"
	"github.com/roach88/qcompat/internal/pubsub"
)

const (
	attrQuestionUUID = "question_uuid"
	attrForwardLogs  = "forward_logs"
	servicesPrefix   = "octue.services."
)

// protocol is what differs between generations.
type protocol interface {
	newID(o options) string
	encodeQuestion(q Question) (map[string]any, error)
	questionAttributes(questionUUID string) map[string]string
	checkAttributes(attrs map[string]string) error
	decodeQuestion(body []byte) (inputValues any, m *manifest.Manifest, err error)
	encodeAnswer(kind string, fields map[string]any) (map[string]any, error)
	answerAttributes(questionUUID string) map[string]string
}

// topicName derives a topic from a service ID.
func topicName(serviceID string) string {
	name := strings.NewReplacer("/", ".", ":", ".").Replace(serviceID)
	if !strings.HasPrefix(name, servicesPrefix) {
		name = servicesPrefix + name
	}
	return name
}

func answerTopicName(serviceID, questionUUID string) string {
	return topicName(serviceID) + ".answers." + questionUUID
}

type service struct {
	id    string
	tr    pubsub.Transport
	proto protocol
	opts  options
}

func newService(tr pubsub.Transport, proto protocol, opts []Option) (*service, error) {
	if tr == nil {
		return nil, fmt.Errorf("new service: nil transport")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &service{id: proto.newID(o), tr: tr, proto: proto, opts: o}, nil
}

func (s *service) ID() string { return s.id }

func (s *service) Serve(ctx context.Context) error {
	if err := s.tr.CreateTopic(ctx, topicName(s.id)); err != nil {
		return fmt.Errorf("serve %s: %w", s.id, err)
	}
	s.opts.logger.Debug("serving", "service", s.id, "topic", topicName(s.id))
	return nil
}

func (s *service) Ask(ctx context.Context, serviceID string, q Question) (Asked, error) {
	if q.InputManifest != nil {
		if err := q.InputManifest.CheckLocal(q.AllowLocalFiles); err != nil {
			return Asked{}, fmt.Errorf("ask %s: %w", serviceID, err)
		}
	}

	body, err := s.proto.encodeQuestion(q)
	if err != nil {
		return Asked{}, fmt.Errorf("ask %s: %w", serviceID, err)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return Asked{}, fmt.Errorf("ask %s: encode question: %w", serviceID, err)
	}

	questionUUID := s.opts.ids.Generate()
	msg := pubsub.Message{Data: data, Attributes: s.proto.questionAttributes(questionUUID)}
	if err := s.tr.Publish(ctx, topicName(serviceID), msg); err != nil {
		return Asked{}, fmt.Errorf("ask %s: %w", serviceID, err)
	}

	s.opts.logger.Debug("asked question", "service", serviceID, "question_uuid", questionUUID)
	return Asked{QuestionUUID: questionUUID, AnswerTopic: answerTopicName(serviceID, questionUUID)}, nil
}

func (s *service) Answer(ctx context.Context, msg pubsub.Message) error {
	if !s.opts.answering {
		return nil
	}

	questionUUID, ok := msg.Attr(attrQuestionUUID)
	if !ok || questionUUID == "" {
		return fmt.Errorf("answer: %w: %s", ErrMissingAttribute, attrQuestionUUID)
	}
	if err := s.proto.checkAttributes(msg.Attributes); err != nil {
		return fmt.Errorf("answer %s: %w", questionUUID, err)
	}

	body, err := pubsub.DecodeData(msg.Data)
	if err != nil {
		return fmt.Errorf("answer %s: %w", questionUUID, err)
	}
	inputValues, inputManifest, err := s.proto.decodeQuestion(body)
	if err != nil {
		return fmt.Errorf("answer %s: %w", questionUUID, err)
	}

	topic := answerTopicName(s.id, questionUUID)
	publish := func(kind string, fields map[string]any) error {
		payload, err := s.proto.encodeAnswer(kind, fields)
		if err != nil {
			return err
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		return s.tr.Publish(ctx, topic, pubsub.Message{
			Data:       data,
			Attributes: s.proto.answerAttributes(questionUUID),
		})
	}

	forwardLogs := msg.Attributes[attrForwardLogs] != "0"
	logger := s.opts.logger.With("question_uuid", questionUUID)
	if forwardLogs {
		logger = slog.New(newForwardingHandler(logger.Handler(), publish))
	}

	analysis := &Analysis{
		ID:            questionUUID,
		InputValues:   inputValues,
		InputManifest: inputManifest,
		Logger:        logger,
	}
	if s.opts.runner != nil {
		if err := s.opts.runner.Run(ctx, analysis); err != nil {
			exc := publish("exception", map[string]any{
				"exception_type":    fmt.Sprintf("%T", err),
				"exception_message": err.Error(),
			})
			if exc != nil {
				s.opts.logger.Warn("failed to publish exception", "question_uuid", questionUUID, "error", exc)
			}
			return fmt.Errorf("answer %s: %w", questionUUID, err)
		}
	}

	result := map[string]any{"output_values": analysis.OutputValues, "output_manifest": nil}
	if analysis.OutputManifest != nil {
		result["output_manifest"] = analysis.OutputManifest
	}
	if err := publish("result", result); err != nil {
		return fmt.Errorf("answer %s: publish result: %w", questionUUID, err)
	}
	return nil
}
