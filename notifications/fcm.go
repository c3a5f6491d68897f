package notifications

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMSink pushes events through Firebase Cloud Messaging. Each user's devices
// subscribe to the topic returned by UserTopic.
type FCMSink struct {
	client *messaging.Client
}

// NewFCMSink prefers base64 credentials in encodedCreds and falls back to the
// service account file at credentialsFile.
func NewFCMSink(ctx context.Context, encodedCreds, credentialsFile string) (*FCMSink, error) {
	var opt option.ClientOption
	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("[FCM] initializing from FCM_SERVICE_ACCOUNT_JSON")
	} else {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file %q: %w", credentialsFile, err)
		}
		opt = option.WithCredentialsFile(credentialsFile)
		log.Printf("[FCM] initializing from %s", credentialsFile)
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return &FCMSink{client: client}, nil
}

// UserTopic is the FCM topic a user's devices subscribe to.
func UserTopic(userID string) string {
	return "user-" + userID
}

func (s *FCMSink) Notify(ctx context.Context, ev Event) error {
	_, err := s.client.Send(ctx, buildMessage(ev))
	if err != nil {
		return fmt.Errorf("fcm send %s: %w", ev.Kind, err)
	}
	return nil
}

func buildMessage(ev Event) *messaging.Message {
	data := map[string]string{"kind": string(ev.Kind)}
	for k, v := range ev.Data {
		data[k] = v
	}
	return &messaging.Message{
		Topic: UserTopic(ev.UserID),
		Notification: &messaging.Notification{
			Title: ev.Title,
			Body:  ev.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
	}
}
