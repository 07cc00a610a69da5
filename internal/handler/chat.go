package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"convo-server/internal/middleware"
	"convo-server/internal/model"
	"convo-server/internal/pubsub"
	"convo-server/internal/store"
	"github.com/gin-gonic/gin"
)

const conversationMessageLimit = 50

type ChatHandler struct {
	Store  store.Store
	Broker pubsub.Broker
}

type sendMessageBody struct {
	Content string `json:"content"`
}

type startConversationBody struct {
	ParticipantIDs []string `json:"participant_ids"`
	Content        string   `json:"content"`
}

func (h *ChatHandler) List(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conversations, err := h.Store.ListConversationsForUser(c.Request.Context(), user.ID)
	if err != nil {
		slog.Error("chat: list conversations", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *ChatHandler) Get(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conv, err := h.Store.GetConversation(c.Request.Context(), c.Param("id"), conversationMessageLimit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		slog.Error("chat: get conversation", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Lookup failed"})
		return
	}

	member := false
	for _, p := range conv.Participants {
		if p.UserID == user.ID {
			member = true
			break
		}
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *ChatHandler) Send(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var body sendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, err := h.send(c.Request.Context(), user, c.Param("id"), body.Content)
	if err != nil {
		h.writeSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// StartConversation creates the conversation, delivers the first message
// through the same path Send uses, and notifies the caller's conversation
// list topic.
func (h *ChatHandler) StartConversation(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var body startConversationBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Content == "" || len(body.ParticipantIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	participantIDs := body.ParticipantIDs
	callerIncluded := false
	for _, id := range participantIDs {
		if id == user.ID {
			callerIncluded = true
			break
		}
	}
	if !callerIncluded {
		participantIDs = append(participantIDs, user.ID)
	}

	conv, err := h.Store.CreateConversation(c.Request.Context(), participantIDs, time.Now().UnixMilli())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown participant"})
			return
		}
		slog.Error("chat: create conversation", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Creation failed"})
		return
	}

	if _, err := h.send(c.Request.Context(), user, conv.ID, body.Content); err != nil {
		h.writeSendError(c, err)
		return
	}

	// TODO: decide whether the other participants' list topics should be
	// notified as well; today only the creator's list updates live.
	h.Broker.Publish(pubsub.ConversationListTopic(user.ID), conv)

	c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
}

// send persists the message, then fans it out to live subscribers. The
// publish is fire-and-forget: the message stays persisted whether or not
// anyone is listening.
func (h *ChatHandler) send(ctx context.Context, sender *model.User, conversationID, content string) (model.Message, error) {
	msg, err := h.Store.InsertMessage(ctx, sender.ID, conversationID, content, time.Now().UnixMilli())
	if err != nil {
		return model.Message{}, err
	}

	h.Broker.Publish(pubsub.ConversationTopic(conversationID), msg)
	return msg, nil
}

func (h *ChatHandler) writeSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, store.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
	default:
		slog.Error("chat: send message", slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Send failed"})
	}
}
