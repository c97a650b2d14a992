// Package web provides the REST management surface: workflow and action
// CRUD, execution control, rule and scheduled message management.
package web

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
	"github.com/pulseops/automation/pkg/rules"
)

type APIHandlers struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	ruleEngine  *rules.Engine
	validator   *validator.Validate
}

func NewAPIHandlers(
	store persistence.Persistence,
	eng *engine.Engine,
	ruleEngine *rules.Engine,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		persistence: store,
		engine:      eng,
		ruleEngine:  ruleEngine,
		validator:   validate,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	workflow, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	actions, err := h.persistence.ActionsByWorkflow(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"workflow": workflow, "actions": actions})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := json.Unmarshal(c.Body(), &workflow); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := workflow.Recurrence.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if workflow.TriggerCondition != nil {
		if err := workflow.TriggerCondition.Validate(); err != nil {
			return badRequest(c, err.Error())
		}
	}

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = "wf-" + uuid.New().String()[:8]
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := h.persistence.SaveWorkflow(c.Context(), &workflow); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.persistence.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateAction(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if _, err := h.persistence.WorkflowByID(c.Context(), workflowID); err != nil {
		return handleError(c, err)
	}

	var action models.Action
	if err := json.Unmarshal(c.Body(), &action); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	action.WorkflowID = workflowID

	if err := h.validator.Struct(&action); err != nil {
		return badRequest(c, err.Error())
	}

	if action.ID == "" {
		action.ID = "act-" + uuid.New().String()[:8]
	}

	if err := h.persistence.SaveAction(c.Context(), &action); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(action)
}

func (h *APIHandlers) DeleteAction(c fiber.Ctx) error {
	if err := h.persistence.DeleteAction(c.Context(), c.Params("actionId")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type fireRequest struct {
	TriggerData map[string]any `json:"trigger_data"`
}

// FireWorkflow manually fires a workflow, the user_action trigger path.
func (h *APIHandlers) FireWorkflow(c fiber.Ctx) error {
	var req fireRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	triggerData := req.TriggerData
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	triggerData["source"] = "api"

	execution, err := h.engine.Fire(c.Context(), c.Params("id"), triggerData)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	executions, err := h.persistence.ExecutionsByWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.persistence.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	actionExecutions, err := h.persistence.ActionExecutionsByExecution(c.Context(), execution.ID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"execution": execution, "action_executions": actionExecutions})
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	if err := h.engine.Pause(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	if err := h.engine.Resume(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if err := h.engine.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	allRules, err := h.persistence.Rules(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"rules": allRules})
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	var rule models.Rule
	if err := json.Unmarshal(c.Body(), &rule); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&rule); err != nil {
		return badRequest(c, err.Error())
	}

	if err := rule.Condition.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()

	if rule.ID == "" {
		rule.ID = "rule-" + uuid.New().String()[:8]
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.persistence.SaveRule(c.Context(), &rule); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

type evaluateRequest struct {
	Context map[string]any `json:"context"`
}

// EvaluateRule runs one rule against a caller-supplied context.
func (h *APIHandlers) EvaluateRule(c fiber.Ctx) error {
	var req evaluateRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	result, err := h.ruleEngine.EvaluateRule(c.Context(), c.Params("id"), req.Context)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) GetMessages(c fiber.Ctx) error {
	messages, err := h.persistence.Messages(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *APIHandlers) GetMessage(c fiber.Ctx) error {
	message, err := h.persistence.MessageByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	deliveries, err := h.persistence.DeliveriesByMessage(c.Context(), message.ID)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"message": message, "deliveries": deliveries})
}

func (h *APIHandlers) CreateMessage(c fiber.Ctx) error {
	var message models.ScheduledMessage
	if err := json.Unmarshal(c.Body(), &message); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(&message); err != nil {
		return badRequest(c, err.Error())
	}

	if err := message.Recurrence.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if message.Condition != nil {
		if err := message.Condition.Validate(); err != nil {
			return badRequest(c, err.Error())
		}
	}

	now := time.Now().UTC()

	if message.ID == "" {
		message.ID = "msg-" + uuid.New().String()[:8]
	}

	if message.Status == "" {
		message.Status = models.MessagePending
	}

	if message.ScheduleType == models.ScheduleImmediate && message.NextSend == nil {
		message.NextSend = &now
	}

	message.CreatedAt = now
	message.UpdatedAt = now

	if err := h.persistence.SaveMessage(c.Context(), &message); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
