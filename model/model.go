package model

import (
	"time"
)

type Account struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	Active      bool       `json:"active"`
	Staff       bool       `json:"staff"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type Form struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Document `json:"questions"`
	OwnerID     int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Response struct {
	ID             int64      `json:"id"`
	FormID         int64      `json:"form_id"`
	RespondentID   *int64     `json:"respondent_id,omitempty"`
	RespondentName string     `json:"respondent_name"`
	Answers        []Document `json:"answers"`
	SubmittedAt    time.Time  `json:"submitted_at"`
}
