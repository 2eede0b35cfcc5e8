package ai

import "fmt"

// System prompts for each Promptify tool. Providers receive these verbatim in
// the request's System field; keeping them here means every provider serves
// the same product behavior.
const (
	// ResumeSystemPrompt instructs the model to act as a resume reviewer.
	ResumeSystemPrompt = "You are a professional resume reviewer. Provide a score out of 100 and detailed feedback."

	// CollegeSystemPrompt instructs the model to act as an admissions advisor.
	CollegeSystemPrompt = "You are an AI advisor for college admissions. Answer accurately and professionally."

	// SummarySystemPrompt instructs the model to summarize input text.
	SummarySystemPrompt = "Summarize the following text into a short paragraph and key bullet points."
)

// EmailSystemPrompt returns the email-drafting system prompt for a tone.
func EmailSystemPrompt(tone string) string {
	if tone == "" {
		tone = "professional"
	}
	return fmt.Sprintf("You are an expert email writer. Create an email with a %s tone.", tone)
}

// ResumeUserPrompt wraps extracted resume text in the analysis instruction.
func ResumeUserPrompt(resumeText string) string {
	return fmt.Sprintf("Analyze this resume and provide feedback including a score:\n\n%s", resumeText)
}
