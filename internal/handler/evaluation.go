package handler

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// EvaluationHandler lets jurors score their assigned articles.
type EvaluationHandler struct {
	DB *gorm.DB
}

func NewEvaluationHandler(db *gorm.DB) *EvaluationHandler {
	return &EvaluationHandler{DB: db}
}

// Pointers so that a score of 0 passes the required check.
type rubricScores struct {
	Introduction *float64 `json:"introduction" binding:"required"`
	Methodology  *float64 `json:"methodology" binding:"required"`
	Development  *float64 `json:"development" binding:"required"`
	Conclusions  *float64 `json:"conclusions" binding:"required"`
	Presentation *float64 `json:"presentation" binding:"required"`
	Comments     string   `json:"comments" binding:"max=2000"`
}

func (r *rubricScores) validate() error {
	for _, s := range []*float64{r.Introduction, r.Methodology, r.Development, r.Conclusions, r.Presentation} {
		if err := util.ValidateScore(*s); err != nil {
			return err
		}
	}
	return nil
}

// rubricAverage is the mean of the five criteria rounded to 2 decimals.
func rubricAverage(intro, method, dev, concl, pres float64) float64 {
	avg := (intro + method + dev + concl + pres) / 5
	return math.Round(avg*100) / 100
}

func (r *rubricScores) apply(e *models.Evaluation) {
	e.Introduction = *r.Introduction
	e.Methodology = *r.Methodology
	e.Development = *r.Development
	e.Conclusions = *r.Conclusions
	e.Presentation = *r.Presentation
	e.Comments = strings.TrimSpace(r.Comments)
	e.Average = rubricAverage(e.Introduction, e.Methodology, e.Development, e.Conclusions, e.Presentation)
}

func evaluationJSON(e *models.Evaluation) gin.H {
	return gin.H{
		"id":           e.ID,
		"article_id":   e.ArticleID,
		"juror_id":     e.JurorID,
		"introduction": e.Introduction,
		"methodology":  e.Methodology,
		"development":  e.Development,
		"conclusions":  e.Conclusions,
		"presentation": e.Presentation,
		"average":      e.Average,
		"comments":     e.Comments,
		"updated_at":   e.UpdatedAt,
	}
}

// MyArticles GET /api/juror/my-articles
func (h *EvaluationHandler) MyArticles(c *gin.Context) {
	juror, ok := currentJuror(c, h.DB)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var articles []models.Article
	if err := h.DB.WithContext(ctx).Preload("Student").
		Joins("JOIN article_jurors ON article_jurors.article_id = articles.id").
		Where("article_jurors.juror_id = ?", juror.ID).
		Order("articles.presentation_date ASC, articles.id ASC").
		Find(&articles).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículos")
		return
	}

	var evaluated []uint
	if err := h.DB.WithContext(ctx).Model(&models.Evaluation{}).
		Where("juror_id = ?", juror.ID).Pluck("article_id", &evaluated).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar evaluaciones")
		return
	}
	done := make(map[uint]bool, len(evaluated))
	for _, id := range evaluated {
		done[id] = true
	}

	items := make([]gin.H, 0, len(articles))
	for i := range articles {
		a := &articles[i]
		item := articleJSON(a)
		item["ponente"] = gin.H{"full_name": a.Student.FullName()}
		item["has_evaluated"] = done[a.ID]
		items = append(items, item)
	}
	util.Success(c, util.Response{"articles": items})
}

// ArticleDetail GET /api/juror/articles/:id
func (h *EvaluationHandler) ArticleDetail(c *gin.Context) {
	juror, ok := currentJuror(c, h.DB)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var article models.Article
	if err := h.DB.WithContext(ctx).Preload("Student").First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Artículo no encontrado")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículo")
		}
		return
	}
	if !h.requireAssigned(c, article.ID, juror.ID) {
		return
	}

	var evals []models.Evaluation
	if err := h.DB.WithContext(ctx).Where("article_id = ?", article.ID).Find(&evals).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar evaluaciones")
		return
	}
	var mine gin.H
	scored := make(map[uint]bool, len(evals))
	for i := range evals {
		scored[evals[i].JurorID] = true
		if evals[i].JurorID == juror.ID {
			mine = evaluationJSON(&evals[i])
		}
	}

	var others []models.Juror
	if err := h.DB.WithContext(ctx).
		Joins("JOIN article_jurors ON article_jurors.juror_id = jurors.id").
		Where("article_jurors.article_id = ? AND jurors.id <> ?", article.ID, juror.ID).
		Order("jurors.last_name ASC, jurors.id ASC").Find(&others).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurados")
		return
	}
	otherItems := make([]gin.H, 0, len(others))
	for i := range others {
		otherItems = append(otherItems, gin.H{
			"id":            others[i].ID,
			"full_name":     others[i].FullName(),
			"has_evaluated": scored[others[i].ID],
		})
	}

	var attended int64
	if err := h.DB.WithContext(ctx).Model(&models.Attendance{}).
		Where("article_id = ?", article.ID).Count(&attended).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar asistencias")
		return
	}

	resp := articleJSON(&article)
	resp["ponente"] = gin.H{"full_name": article.Student.FullName(), "school": article.Student.School}
	resp["my_evaluation"] = mine
	resp["other_jurors"] = otherItems
	resp["total_attendances"] = attended
	util.Success(c, util.Response{"article": resp})
}

// requireAssigned writes 403 unless the juror is assigned to the article.
func (h *EvaluationHandler) requireAssigned(c *gin.Context, articleID, jurorID uint) bool {
	var assigned int64
	if err := h.DB.WithContext(c.Request.Context()).Model(&models.ArticleJuror{}).
		Where("article_id = ? AND juror_id = ?", articleID, jurorID).
		Count(&assigned).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar asignación")
		return false
	}
	if assigned == 0 {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "No tienes permiso para evaluar este artículo")
		return false
	}
	return true
}

type createEvaluationReq struct {
	ArticleID uint `json:"article_id" binding:"required"`
	rubricScores
}

// Create POST /api/juror/evaluations
func (h *EvaluationHandler) Create(c *gin.Context) {
	juror, ok := currentJuror(c, h.DB)
	if !ok {
		return
	}

	var req createEvaluationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}
	if err := req.validate(); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Cada criterio debe estar entre 0 y 20")
		return
	}

	ctx := c.Request.Context()
	if !h.requireAssigned(c, req.ArticleID, juror.ID) {
		return
	}

	eval := models.Evaluation{ArticleID: req.ArticleID, JurorID: juror.ID}
	req.apply(&eval)
	if err := h.DB.WithContext(ctx).Create(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			util.Error(c, http.StatusConflict, util.CodeConflict, "Ya evaluaste este artículo. Usa la opción de editar")
			return
		}
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al registrar evaluación")
		return
	}

	util.Created(c, util.Response{
		"message":    "Evaluación registrada exitosamente",
		"evaluation": evaluationJSON(&eval),
	})
}

// findOwn loads an evaluation of the current juror or writes 404.
func (h *EvaluationHandler) findOwn(c *gin.Context, juror *models.Juror) (*models.Evaluation, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	var eval models.Evaluation
	err := h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND juror_id = ?", id, juror.ID).First(&eval).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, util.CodeNotFound, "Evaluación no encontrada")
		} else {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar evaluación")
		}
		return nil, false
	}
	return &eval, true
}

// Update PUT /api/juror/evaluations/:id
func (h *EvaluationHandler) Update(c *gin.Context) {
	juror, ok := currentJuror(c, h.DB)
	if !ok {
		return
	}
	eval, ok := h.findOwn(c, juror)
	if !ok {
		return
	}

	var req rubricScores
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Parámetros inválidos")
		return
	}
	if err := req.validate(); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "Cada criterio debe estar entre 0 y 20")
		return
	}
	if !h.requireAssigned(c, eval.ArticleID, juror.ID) {
		return
	}

	req.apply(eval)
	if err := h.DB.WithContext(c.Request.Context()).Save(eval).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al actualizar evaluación")
		return
	}
	util.Success(c, util.Response{
		"message":    "Evaluación actualizada exitosamente",
		"evaluation": evaluationJSON(eval),
	})
}

// MyEvaluations GET /api/juror/my-evaluations
func (h *EvaluationHandler) MyEvaluations(c *gin.Context) {
	juror, ok := currentJuror(c, h.DB)
	if !ok {
		return
	}

	var evals []models.Evaluation
	if err := h.DB.WithContext(c.Request.Context()).Preload("Article").
		Where("juror_id = ?", juror.ID).
		Order("updated_at DESC, id DESC").
		Find(&evals).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar evaluaciones")
		return
	}

	items := make([]gin.H, 0, len(evals))
	for i := range evals {
		item := evaluationJSON(&evals[i])
		item["article_title"] = evals[i].Article.Title
		items = append(items, item)
	}
	util.Success(c, util.Response{
		"total":       len(items),
		"evaluations": items,
	})
}

// Delete DELETE /api/juror/evaluations/:id
func (h *EvaluationHandler) Delete(c *gin.Context) {
	juror, ok := currentJuror(c, h.DB)
	if !ok {
		return
	}
	eval, ok := h.findOwn(c, juror)
	if !ok {
		return
	}

	if err := h.DB.WithContext(c.Request.Context()).Delete(eval).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al eliminar evaluación")
		return
	}
	util.Success(c, util.Response{"message": "Evaluación eliminada"})
}
