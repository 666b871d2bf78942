package handler

import (
	"net/http"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/attendance"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/models"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// StudentHandler serves the speaker and listener views.
type StudentHandler struct {
	DB  *gorm.DB
	Svc *attendance.Service
}

func NewStudentHandler(db *gorm.DB, svc *attendance.Service) *StudentHandler {
	return &StudentHandler{DB: db, Svc: svc}
}

func articleJSON(a *models.Article) gin.H {
	var date interface{}
	if a.PresentationDate != nil {
		date = a.PresentationDate.Format("2006-01-02")
	}
	return gin.H{
		"id":                a.ID,
		"title":             a.Title,
		"description":       a.Description,
		"type":              a.Type,
		"presentation_date": date,
		"presentation_time": a.PresentationTime,
		"shift":             a.Shift,
	}
}

// MyArticle GET /api/student/my-article
func (h *StudentHandler) MyArticle(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	article, err := h.Svc.SpeakerArticle(ctx, student.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}
	total, err := h.Svc.CountAttendees(ctx, article.ID)
	if err != nil {
		writeAttendanceError(c, err)
		return
	}

	var jurors int64
	if err := h.DB.WithContext(ctx).Model(&models.ArticleJuror{}).
		Where("article_id = ?", article.ID).Count(&jurors).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar jurados")
		return
	}

	resp := articleJSON(article)
	resp["total_attendances"] = total
	resp["total_jurors"] = jurors
	util.Success(c, util.Response{"article": resp})
}

// AvailableArticles GET /api/student/available-articles
func (h *StudentHandler) AvailableArticles(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}
	if !student.IsListener() {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "Solo los oyentes pueden ver artículos disponibles")
		return
	}

	ctx := c.Request.Context()
	var attendedIDs []uint
	if err := h.DB.WithContext(ctx).Model(&models.Attendance{}).
		Where("student_id = ?", student.ID).
		Pluck("article_id", &attendedIDs).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar asistencias")
		return
	}
	attended := make(map[uint]bool, len(attendedIDs))
	for _, id := range attendedIDs {
		attended[id] = true
	}

	var articles []models.Article
	if err := h.DB.WithContext(ctx).Preload("Student").
		Order("presentation_date ASC, presentation_time ASC, id ASC").
		Find(&articles).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar artículos")
		return
	}

	items := make([]gin.H, 0, len(articles))
	for i := range articles {
		a := &articles[i]
		item := articleJSON(a)
		item["ponente"] = gin.H{
			"full_name":    a.Student.FullName(),
			"student_code": a.Student.StudentCode,
		}
		item["has_attended"] = attended[a.ID]
		items = append(items, item)
	}

	util.Success(c, util.Response{"articles": items})
}

// MyAttendances GET /api/student/my-attendances
func (h *StudentHandler) MyAttendances(c *gin.Context) {
	student, ok := currentStudent(c, h.DB)
	if !ok {
		return
	}
	if !student.IsListener() {
		util.Error(c, http.StatusForbidden, util.CodeForbidden, "Solo los oyentes tienen historial de asistencias")
		return
	}

	var rows []models.Attendance
	if err := h.DB.WithContext(c.Request.Context()).
		Preload("Article").Preload("Article.Student").
		Where("student_id = ?", student.ID).
		Order("scanned_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "Error al consultar asistencias")
		return
	}

	items := make([]gin.H, 0, len(rows))
	for i := range rows {
		a := &rows[i]
		items = append(items, gin.H{
			"id":      a.ID,
			"article": articleJSON(&a.Article),
			"ponente": gin.H{
				"full_name":    a.Article.Student.FullName(),
				"student_code": a.Article.Student.StudentCode,
			},
			"attended_at": a.ScannedAt.Format(dateTimeLayout),
		})
	}

	util.Success(c, util.Response{
		"total_attendances": len(items),
		"attendances":       items,
	})
}
