package exam

import "time"

// AttemptView is the response shape of every attempt operation.
type AttemptView struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at"`
	Score       *int          `json:"score"`
	TotalPoints *int          `json:"total_points"`
	Status      AttemptStatus `json:"status"`
	UserID      string        `json:"user_id"`
	UserName    string        `json:"user_name"`
	ExamID      string        `json:"exam_id"`
	ExamTitle   string        `json:"exam_title"`
	Answers     []AnswerView  `json:"answers"`
}

type AnswerView struct {
	ID                 string    `json:"id"`
	TextAnswer         *string   `json:"text_answer"`
	SelectedOptionID   *string   `json:"selected_option_id"`
	BooleanAnswer      *bool     `json:"boolean_answer"`
	PointsEarned       int       `json:"points_earned"`
	AnsweredAt         time.Time `json:"answered_at"`
	QuestionID         string    `json:"question_id"`
	QuestionText       string    `json:"question_text"`
	SelectedOptionText *string   `json:"selected_option_text"`
}

func NewAttemptView(a Attempt) AttemptView {
	v := AttemptView{
		ID:          a.ID,
		StartedAt:   a.StartedAt,
		CompletedAt: a.CompletedAt,
		Score:       a.Score,
		TotalPoints: a.TotalPoints,
		Status:      a.Status,
		UserID:      a.UserID,
		UserName:    a.UserName,
		ExamID:      a.ExamID,
		ExamTitle:   a.ExamTitle,
		Answers:     make([]AnswerView, 0, len(a.Answers)),
	}
	for _, ans := range a.Answers {
		av := AnswerView{
			ID:               ans.ID,
			TextAnswer:       ans.TextAnswer,
			SelectedOptionID: ans.SelectedOptionID,
			BooleanAnswer:    ans.BooleanAnswer,
			PointsEarned:     ans.PointsEarned,
			AnsweredAt:       ans.AnsweredAt,
			QuestionID:       ans.QuestionID,
		}
		if ans.Question != nil {
			av.QuestionText = ans.Question.Text
		}
		if ans.SelectedOption != nil {
			text := ans.SelectedOption.Text
			av.SelectedOptionText = &text
		}
		v.Answers = append(v.Answers, av)
	}
	return v
}

func NewAttemptViews(list []Attempt) []AttemptView {
	out := make([]AttemptView, 0, len(list))
	for _, a := range list {
		out = append(out, NewAttemptView(a))
	}
	return out
}
