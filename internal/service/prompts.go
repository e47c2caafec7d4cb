package service

import "easy-canvas-go/pkg/llm"

// ApologyMessage 是模型调用失败时返回并持久化的助手回复。
const ApologyMessage = "I'm sorry, I'm having trouble processing your request right now. Please try again later."

// ChatSystemPrompt 告诉模型有哪些 Canvas 工具以及何时调用。
const ChatSystemPrompt = `You are a comprehensive AI study guide, tutor, and assistant with access to Canvas LMS, a learning management system.
You can help with course-related questions, assignments, deadlines, and other Canvas-related information.
You can also help with general study questions, and provide study materials and resources.
Be helpful and in depth. The user can see this information in their Canvas portal, so present it in a way that adds value.

You have access to the following functions to retrieve Canvas data:
- get_courses: Get a list of the user's courses
- get_assignments: Get a summary list of assignments (name, due date, points, etc.) for browsing
- get_assignment: Get detailed information for a specific assignment (description, requirements, etc.)
- get_upcoming_due_dates: Get assignments due in the next X days
- get_announcements: Get recent announcements from courses
- get_course_modules: Get modules for a specific course
- get_module_items: Get items for a specific module in a course
- get_user_info: Get basic information about the user

IMPORTANT: When the user asks about content of a specific course (for example "my NLP class" or "the history course"), you MUST:
1. Call get_courses to get the list of courses
2. Find the course that matches the user's description
3. Call the appropriate function (get_course_modules, get_assignments, etc.) with that course_id
4. Answer based on the retrieved data

To judge how the user is doing in a course, call get_assignments for that course and look at the 'grade' field of each assignment.

You can make multiple function calls in a single response when needed. Always use the actual course IDs from get_courses.

IMPORTANT: Use get_assignments for browsing, and get_assignment when the user wants the details of one assignment.
IMPORTANT: Always format the final response as markdown, without wrapping it in a markdown code fence. Use headings, lists and emphasis so it is not a wall of text.
IMPORTANT: Do not answer requests outside the scope of academics, education, learning and study support.`

// PlannerSystemPrompt 是生成学习计划时的系统提示。
const PlannerSystemPrompt = `You are an expert academic planner and study strategist. You help students create comprehensive, actionable todo lists and study plans based on their Canvas course data.

Produce a plan with:
- todos: concrete tasks with priority high, medium or low, an estimated time and the related course
- deadlines: upcoming due dates with priority urgent, important or normal
- studyBlocks: focused study sessions with duration, topics and difficulty easy, medium or hard
- insights: short tips, warnings, successes or information about the student's workload
- summary: totals for tasks, high priority items, upcoming deadlines and the estimated study time

Prioritize work by due date and point value. Only reference assignments and courses that appear in the data.`

// SummarizeSystemPrompt 是作业描述摘要的系统提示。
const SummarizeSystemPrompt = "You are a helpful teaching assistant that summarizes Canvas assignments clearly and concisely."

// SummarizePromptPrefix 拼接在待摘要文本之前。
const SummarizePromptPrefix = "Summarize this Canvas assignment description concisely. Focus on key requirements, deadlines, and deliverables. Keep it brief but informative:\n\n"

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func intParam(description string, nullable bool) map[string]interface{} {
	p := map[string]interface{}{"type": "integer", "description": description}
	if nullable {
		p["type"] = []string{"integer", "null"}
	}
	return p
}

func functionTool(name, description string, parameters map[string]interface{}) llm.Tool {
	return llm.Tool{Type: "function", Name: name, Description: description, Parameters: parameters, Strict: true}
}

// canvasToolDefinitions 返回暴露给模型的全部 Canvas 工具。
func canvasToolDefinitions() []llm.Tool {
	return []llm.Tool{
		functionTool("get_courses", "Get a list of the user's Canvas courses", objectSchema(map[string]interface{}{})),
		functionTool("get_assignments",
			"Get a summary list of assignments for a specific course or all courses. Returns only essential fields like name, due date, points, etc. Use get_assignment for detailed information about a specific assignment.",
			objectSchema(map[string]interface{}{
				"course_id": intParam("The ID of the course to get assignments from. If not provided, returns assignments from all courses.", true),
				"days_due":  intParam("Filter assignments to only those due within this many days.", true),
			}, "course_id", "days_due")),
		functionTool("get_assignment",
			"Get detailed information for a specific assignment including description, submission requirements, and all other fields.",
			objectSchema(map[string]interface{}{
				"assignment_id": intParam("The ID of the assignment to get detailed information for", false),
				"course_id":     intParam("Optional course ID to narrow the search", true),
			}, "assignment_id", "course_id")),
		functionTool("get_upcoming_due_dates", "Get assignments due in the next specified number of days",
			objectSchema(map[string]interface{}{
				"days": intParam("Number of days to look ahead for assignments due", false),
			}, "days")),
		functionTool("get_announcements", "Get recent announcements from courses",
			objectSchema(map[string]interface{}{
				"course_id": intParam("The ID of the course to get announcements from. If not provided, returns announcements from all courses.", true),
				"limit":     intParam("Maximum number of announcements to return", false),
			}, "course_id", "limit")),
		functionTool("get_course_modules", "Get modules for a specific course",
			objectSchema(map[string]interface{}{
				"course_id": intParam("The ID of the course to get modules from", false),
			}, "course_id")),
		functionTool("get_module_items", "Get items for a specific module in a course",
			objectSchema(map[string]interface{}{
				"course_id": intParam("The ID of the course", false),
				"module_id": intParam("The ID of the module", false),
			}, "course_id", "module_id")),
		functionTool("get_user_info", "Get basic information about the user", objectSchema(map[string]interface{}{})),
	}
}
