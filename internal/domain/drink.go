package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrDrinkNotFound is returned when looking up a non-existent drink.
	ErrDrinkNotFound = errors.New("drink not found")
	// ErrDrinkConflict is returned when a drink title is already taken.
	ErrDrinkConflict = errors.New("drink title already exists")
	// ErrInvalidDrink is returned when a drink is missing its title or recipe.
	ErrInvalidDrink = errors.New("drink requires a title and a recipe")
)

// Ingredient is one layer of a drink's recipe.
type Ingredient struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Parts int    `json:"parts"`
}

// Recipe is an ordered list of ingredients. It decodes from either a JSON
// array or a single ingredient object.
type Recipe []Ingredient

func (r *Recipe) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var single Ingredient
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*r = Recipe{single}
		return nil
	}

	var list []Ingredient
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*r = list
	return nil
}

// Drink is a menu item.
type Drink struct {
	ID     int64
	Title  string
	Recipe Recipe
}

// Validate checks the fields every stored drink must have.
func (d *Drink) Validate() error {
	if strings.TrimSpace(d.Title) == "" || len(d.Recipe) == 0 {
		return ErrInvalidDrink
	}
	return nil
}

// ShortIngredient is an ingredient without its name, for the public menu.
type ShortIngredient struct {
	Color string `json:"color"`
	Parts int    `json:"parts"`
}

// ShortDrink is the public representation of a drink.
type ShortDrink struct {
	ID     int64             `json:"id"`
	Title  string            `json:"title"`
	Recipe []ShortIngredient `json:"recipe"`
}

// LongDrink is the full representation, shown to baristas and managers.
type LongDrink struct {
	ID     int64        `json:"id"`
	Title  string       `json:"title"`
	Recipe []Ingredient `json:"recipe"`
}

// Short hides ingredient names.
func (d *Drink) Short() ShortDrink {
	recipe := make([]ShortIngredient, 0, len(d.Recipe))
	for _, i := range d.Recipe {
		recipe = append(recipe, ShortIngredient{Color: i.Color, Parts: i.Parts})
	}
	return ShortDrink{ID: d.ID, Title: d.Title, Recipe: recipe}
}

// Long returns the full recipe.
func (d *Drink) Long() LongDrink {
	recipe := make([]Ingredient, len(d.Recipe))
	copy(recipe, d.Recipe)
	return LongDrink{ID: d.ID, Title: d.Title, Recipe: recipe}
}

// DrinkUpdate holds the fields of a partial update. Nil fields are left as they are.
type DrinkUpdate struct {
	Title  *string
	Recipe *Recipe
}

// Apply returns a copy of d with the update applied.
func (u DrinkUpdate) Apply(d Drink) Drink {
	if u.Title != nil {
		d.Title = *u.Title
	}
	if u.Recipe != nil {
		d.Recipe = *u.Recipe
	}
	return d
}
