package compliance

import "github.com/tmc/langchaingo/prompts"

const evaluationPrompt = `You are an AI Assistant tasked with evaluating compliance based on the provided information.

**Input Details:**
- **Compliance Requirements**: {{.compliance_requirements}}
- **Supporting Document Points**: {{.supporting_document_points}}
- **Retrieved Document Context**: {{.formatted_chunks}}

**Your Task:**
1. **Supporting Document Points Verification**:
   - Analyze the "Supporting Document Points" provided.
   - Verify their alignment with the retrieved document context.
   - Identify any gaps or missing information for each supporting point.

2. **Compliance Requirements Verification**:
   - Evaluate the provided "Compliance Requirements."
   - Use the retrieved document context and supporting document points for this evaluation.
   - Determine whether the compliance requirements are fully met, partially met, or not met.
   - Highlight which requirements or sub-requirements are not satisfied, if applicable.

3. **Provide a Compliance Status**:
   - Based on your evaluation, assign one of the following compliance statuses:
     - **Fully Compliant**: All supporting document points and compliance requirements are fully addressed.
     - **Partially Compliant**: Some points or requirements are addressed, but others are incomplete or missing.
     - **Not Compliant**: The provided documents fail to meet the supporting document points and compliance requirements.

**Output Format**:
- **Compliance Status**: [Fully Compliant / Partially Compliant / Not Compliant]
- **Reasons for Compliance Status**:
  - Provide detailed explanations for each compliance requirement and supporting document point.
  - For each point or requirement not met, include a reason why it was not satisfied.
  - Sub-requirement Analysis (if applicable):
    - Sub-requirement A: [Met/Not Met] - Explanation
    - Sub-requirement B: [Met/Not Met] - Explanation
    - Sub-requirement C: [Met/Not Met] - Explanation
`

func evaluationTemplate() prompts.PromptTemplate {
	return prompts.NewPromptTemplate(evaluationPrompt, []string{
		"compliance_requirements",
		"supporting_document_points",
		"formatted_chunks",
	})
}
