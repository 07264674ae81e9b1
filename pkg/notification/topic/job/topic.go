/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	"github.com/AMD-AIG-AIMA/Custos/pkg/notification/model"
)

type Topic struct {
}

func (t *Topic) Name() string {
	return model.TopicJobFinished
}

// Filter keeps only the outcomes operators asked to hear about.
func (t *Topic) Filter(data map[string]interface{}) bool {
	outcome, ok := data["outcome"].(string)
	if !ok {
		klog.Infof("no outcome found in data or outcome is not a string")
		return false
	}
	for _, want := range config.GetNotificationTopics() {
		if strings.EqualFold(want, outcome) {
			return true
		}
	}
	klog.V(4).Infof("topic %s does not match filter, outcome %s", t.Name(), outcome)
	return false
}

func (t *Topic) BuildMessage(_ context.Context, data map[string]interface{}) ([]*model.Message, error) {
	topicData := &TopicData{}
	raw, err := json.Marshal(data)
	if err == nil {
		err = json.Unmarshal(raw, topicData)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to convert data to TopicData: %w", err)
	}
	if topicData.Job == nil {
		return nil, fmt.Errorf("no job in notification data")
	}

	emailData := EmailData{
		JobId:        topicData.Job.Id,
		Custodian:    topicData.Job.CustodianEmail,
		JobType:      topicData.Job.JobType,
		Status:       topicData.Outcome,
		StatusColor:  getStatusColor(topicData.Outcome),
		Items:        topicData.Job.ActualItems,
		Bytes:        topicData.Job.ActualBytes,
		FinishedTime: time.Now().UTC().Format(time.DateTime),
		ErrorMessage: topicData.Message,
	}
	emailContent, err := renderEmailTemplate(emailData)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	message := &model.Message{
		Email: &model.EmailMessage{
			Title:   fmt.Sprintf("Collection job %d - %s", topicData.Job.Id, topicData.Outcome),
			Content: emailContent,
			To:      config.GetNotificationTo(),
		},
	}
	if len(message.Email.To) == 0 {
		klog.Warningf("no email recipients configured for job %d", topicData.Job.Id)
		return nil, nil
	}
	return []*model.Message{message}, nil
}

type TopicData struct {
	Job     *client.Job `json:"job,omitempty"`
	Outcome string      `json:"outcome,omitempty"`
	Message string      `json:"message,omitempty"`
}

type EmailData struct {
	JobId        int64
	Custodian    string
	JobType      string
	Status       string
	StatusColor  string
	Items        int64
	Bytes        int64
	FinishedTime string
	ErrorMessage string
}

// renderEmailTemplate renders the HTML email template using Go's html/template.
func renderEmailTemplate(data EmailData) (string, error) {
	tmpl, err := template.New("email_template").Parse(emailTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}

	return buf.String(), nil
}

func getStatusColor(status string) string {
	switch status {
	case client.JobFailed:
		return "#c53030" // red
	case client.JobCompleted:
		return "#2f855a" // green
	case client.JobPartiallyCompleted:
		return "#d69e2e" // yellow
	case client.JobCancelled:
		return "#3182ce" // blue
	default:
		return "#4a5568" // gray (unknown)
	}
}
