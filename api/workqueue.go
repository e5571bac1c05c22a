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
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/meterline/meterline/api/model"
	"github.com/meterline/meterline/internal/apierror"
)

// CreateWorkItem enqueues a new work item on a queue.
//
// Responses:
// - 400 Bad Request: If there's an error in binding JSON or validating the item.
// - 201 Created: If the work item is successfully enqueued.
func (a Api) CreateWorkItem(c *gin.Context) {
	queueKey, passed := c.Params.Get("queue_key")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queue_key is required. pass queue_key in the route /queues/:queue_key/work-items"})
		return
	}

	var newItem model2.CreateWorkItem
	if err := c.ShouldBindJSON(&newItem); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newItem.ValidateCreateWorkItem(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.meterline.CreateWorkItem(c.Request.Context(), newItem.ToWorkItem(queueKey))
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// PollWorkItem claims the next eligible work item on a queue for the calling
// worker.
//
// Responses:
// - 200 OK: With the claimed item, or with no item when the queue is empty.
func (a Api) PollWorkItem(c *gin.Context) {
	queueKey, passed := c.Params.Get("queue_key")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queue_key is required. pass queue_key in the route /queues/:queue_key/poll"})
		return
	}

	item, err := a.meterline.Poll(c.Request.Context(), queueKey)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, gin.H{"work_item": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"work_item": item})
}

// SubmitWorkItem records the result for a claimed work item.
//
// Responses:
// - 409 Conflict: If the claim token is stale.
// - 200 OK: If the result is recorded.
func (a Api) SubmitWorkItem(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /work-items/:id/submit"})
		return
	}

	var submission model2.SubmitResult
	if err := c.ShouldBindJSON(&submission); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := submission.ValidateSubmitResult(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.meterline.SubmitResult(c.Request.Context(), id, submission.ClaimToken, submission.Result)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReleaseWorkItem gives up a claim, optionally marking the item failed.
//
// Responses:
// - 200 OK: With the action taken (including a no-op on an unclaimed item).
func (a Api) ReleaseWorkItem(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /work-items/:id/release"})
		return
	}

	var release model2.ReleaseWorkItem
	if err := c.ShouldBindJSON(&release); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := release.ValidateReleaseWorkItem(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	action, err := a.meterline.ReleaseWorkItem(c.Request.Context(), id, release.MarkFailed, release.Reason)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action})
}

// GetWorkItem retrieves a work item by ID.
func (a Api) GetWorkItem(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.meterline.GetWorkItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetQueueWorkItems lists a queue's work items in creation order.
func (a Api) GetQueueWorkItems(c *gin.Context) {
	queueKey, passed := c.Params.Get("queue_key")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queue_key is required. pass queue_key in the route /queues/:queue_key/work-items"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	resp, err := a.meterline.GetWorkItemsByQueue(c.Request.Context(), queueKey, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
