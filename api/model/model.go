/*
Copyright 2024 Meterline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/meterline/meterline/model"
)

func (w *CreateWorkItem) ValidateCreateWorkItem() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.Content, validation.Required.When(w.PayloadRef == "").Error("either content or payload_ref is required")),
	)
}

func (w *CreateWorkItem) ToWorkItem(queueKey string) *model.WorkItem {
	return &model.WorkItem{
		QueueKey:   queueKey,
		PayloadRef: w.PayloadRef,
		Content:    w.Content,
		MetaData:   w.MetaData,
	}
}

func (s *SubmitResult) ValidateSubmitResult() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ClaimToken, validation.Required),
	)
}

func (r *ReleaseWorkItem) ValidateReleaseWorkItem() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reason, validation.Required.When(r.MarkFailed).Error("reason is required when marking an item failed")),
	)
}

func (g *CreateGrant) ValidateCreateGrant() error {
	return validation.ValidateStruct(g,
		validation.Field(&g.AccountID, validation.Required),
		validation.Field(&g.Amount, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&g.ExpiresAt, validation.By(func(value interface{}) error {
			if g.ExpiresAt == "" {
				return nil
			}
			return validateDateFormat(time.RFC3339, g.ExpiresAt)
		})),
	)
}

func (g *CreateGrant) ToCreditGrant() (*model.CreditGrant, error) {
	grant := &model.CreditGrant{
		AccountID:      g.AccountID,
		OriginalAmount: decimal.NewFromFloat(g.Amount),
		Source:         g.Source,
		Reason:         g.Reason,
	}
	if g.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, g.ExpiresAt)
		if err != nil {
			return nil, err
		}
		grant.ExpiresAt = &expiresAt
	}
	return grant, nil
}

func (r *ChargeRequest) ValidateChargeRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AccountID, validation.Required),
		validation.Field(&r.WorkItemIDs, validation.Required, validation.Length(1, 0)),
	)
}

func validateDateFormat(format, value string) error {
	_, err := time.Parse(format, value)
	if err != nil {
		return errors.New("please format the expiry date as 'YYYY-MM-DDTHH:MM:SS+00:00' (e.g., 2024-04-22T15:28:03+00:00)")
	}
	return nil
}
