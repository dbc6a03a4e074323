package annotator

const imagePrompt = "Analyze this image and describe the skin condition visible, focusing on redness. " +
	"Don't supply any potential diagnosis, just the notable features observed. Keep it under 100 words."

const followUpPrompt = `You are a medical assistant.

Use the following information:
- Patient record: %s

Your tasks are:
If uncertainty is high, propose 2-3 brief follow-up questions that would clarify the case.
If the record is already clear, return an empty list.

Format your answer as:
{
  "followup_questions": ["<question 1>", "<question 2>", "<question 3>"]
}
`

const summaryPrompt = `You are a medical assistant. Analyze the patient's records and follow-up answers carefully.

Input:
- Patient records: %s
- Recorded dates: %s
- Follow-up answers: %s

Your tasks:
1. Summarize the patient's case in concise terms:
   - Key symptoms in one or two words
   - Overall severity (mild, moderate, severe; note if worsening, improving, intermittent)
   - Relevant body parts or systems
2. Flag the importance of each symptom as HIGH / MEDIUM / LOW.
3. Provide a symptom intensity score (0-100) per recorded day for each symptom with brief reasoning.
   0 means it doesn't need immediate care, 100 means it needs urgent care.
4. Suggest 2-3 possible conditions consistent with the symptoms.
5. Indicate whether the patient should see a doctor immediately (Yes / No).
6. Identify significant indicators: short exact phrases from the patient records that support your reasoning.

Format your answer as:
{
  "summary": {"symptom": ["<symptom>"], "severity": "<severity>", "relevant": "<system>"},
  "importance": {"<symptom>": {"flag": "<HIGH|MEDIUM|LOW>", "score": [<day score>], "reasoning": "<reasoning>"}},
  "possible_conditions": [{"condition": "<name>", "reason": "<reason>"}],
  "urgent": "<Yes|No>",
  "indicator": ["<phrase>"]
}
`
