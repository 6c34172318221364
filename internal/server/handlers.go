package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AmeenMohammed/coffee-shop/internal/domain"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

func (h *handler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Hello you've made it to the coffee app ^_^",
	})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) listDrinks(c *gin.Context) {
	drinks, err := h.drinks.List(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]domain.ShortDrink, 0, len(drinks))
	for i := range drinks {
		out = append(out, drinks[i].Short())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "drinks": out})
}

func (h *handler) listDrinkDetails(c *gin.Context) {
	drinks, err := h.drinks.List(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]domain.LongDrink, 0, len(drinks))
	for i := range drinks {
		out = append(out, drinks[i].Long())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "drinks": out})
}

func (h *handler) createDrink(c *gin.Context) {
	body, err := util.ParseJSONBody(c.Request)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if !body.Has("title") || !body.Has("recipe") {
		writeError(c, http.StatusUnprocessableEntity, "unprocessable")
		return
	}

	var d domain.Drink
	if err := body.Decode("title", &d.Title); err != nil {
		writeError(c, http.StatusUnprocessableEntity, "unprocessable")
		return
	}
	if err := body.Decode("recipe", &d.Recipe); err != nil {
		writeError(c, http.StatusUnprocessableEntity, "unprocessable")
		return
	}
	d.Title = strings.TrimSpace(d.Title)
	if err := d.Validate(); err != nil {
		writeDomainError(c, err)
		return
	}

	created, err := h.drinks.Create(c.Request.Context(), d)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	logger.Info("Drink %d (%s) created by %s", created.ID, created.Title, subject(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "drinks": []domain.LongDrink{created.Long()}})
}

func (h *handler) updateDrink(c *gin.Context) {
	id, ok := drinkID(c)
	if !ok {
		return
	}
	if _, err := h.drinks.Get(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}

	body, err := util.ParseJSONBody(c.Request)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	var update domain.DrinkUpdate
	if body.Has("title") {
		var title string
		if err := body.Decode("title", &title); err != nil || strings.TrimSpace(title) == "" {
			writeError(c, http.StatusUnprocessableEntity, "unprocessable")
			return
		}
		title = strings.TrimSpace(title)
		update.Title = &title
	}
	if body.Has("recipe") {
		var recipe domain.Recipe
		if err := body.Decode("recipe", &recipe); err != nil || len(recipe) == 0 {
			writeError(c, http.StatusUnprocessableEntity, "unprocessable")
			return
		}
		update.Recipe = &recipe
	}

	updated, err := h.drinks.Update(c.Request.Context(), id, update)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	logger.Info("Drink %d updated by %s", id, subject(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "drinks": []domain.LongDrink{updated.Long()}})
}

func (h *handler) deleteDrink(c *gin.Context) {
	id, ok := drinkID(c)
	if !ok {
		return
	}
	if err := h.drinks.Delete(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	logger.Info("Drink %d deleted by %s", id, subject(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "delete": id})
}

// drinkID parses the :id path segment. Non-numeric ids are treated as unknown drinks.
func drinkID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeDomainError(c, fmt.Errorf("drink %q: %w", c.Param("id"), domain.ErrDrinkNotFound))
		return 0, false
	}
	return id, true
}

func subject(c *gin.Context) string {
	if claims, ok := ClaimsFromContext(c); ok {
		return claims.Subject
	}
	return "anonymous"
}
