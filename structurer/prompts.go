package structurer

import "fmt"

const structurePrompt = `
Parse the following project plan text and structure it into the provided JSON schema.
For each step, extract the 'Activity', 'Considerations' (or 'Key Tools'/'Key Frameworks'), and 'Output'.
The 'title' for each step should be a concise summary of the 'Activity'.
Generate unique IDs for each phase and step. For example, 'phase-i' and 'step-1-1'.

Project Plan Text:
---
%s
---
`

const elaboratePrompt = `
Given the following section from a project task, provide a list of 3-5 actionable and enumerated suggestions to elaborate on it.
The suggestions should be concrete next steps, potential tools to use, or key questions to consider.

Section Title: %q

Current Text:
---
%s
---
`

func buildStructurePrompt(text string) string {
	return fmt.Sprintf(structurePrompt, text)
}

func buildElaboratePrompt(section, text string) string {
	return fmt.Sprintf(elaboratePrompt, section, text)
}

// SamplePlan is an example plan for trying the service out.
const SamplePlan = `
Workflow Suggestions: Members-Only Web Application (Node.js, Vue.js, Tailwind CSS)

This workflow is delineated into logical phases, emphasizing parallelizable tasks where appropriate, and critical dependencies.

Phase I: Foundation & Core Setup (The Pre-Development Configuration)

This phase establishes the project's technological and structural backbone.

1.  Project Repository Strategy:
       Activity: Decide on a monorepo (e.g., using Lerna or Yarn Workspaces) or separate repositories for frontend and backend.
       Considerations: Monorepo simplifies shared utilities, while separate repos allow independent deployments. For initial stages, a monorepo can be simpler for local development.
       Output: Initialized Git repository structure.

2.  Backend (Node.js) Project Initialization:
       Activity: Initialize a Node.js project.
       Key Frameworks: Express.js is highly recommended for RESTful API creation.
       Output: package.json with basic Node.js and Express dependencies.

3.  Frontend (Vue.js & Tailwind CSS) Project Initialization:
       Activity: Initialize a Vue.js project using Vue CLI or Vite. Integrate Tailwind CSS.
       Key Tools: vue create (Vue CLI) or npm init vue@latest (Vite) followed by Tailwind CSS PostCSS configuration.
       Output: Vue.js boilerplate with Tailwind CSS configured and ready for component styling.

4.  Database Selection & Initial Setup:
       Activity: Choose a suitable database. For user management, a relational database (e.g., PostgreSQL, MySQL) or a NoSQL document database (e.g., MongoDB) are common.
       Considerations: Relational databases provide strong schema integrity (ideal for user data). MongoDB offers flexibility.
       Output: Database selected, initial connection configured in the Node.js environment.

Phase II: Backend API Development (Node.js - Authentication & User Management)

This phase constructs the secure core logic for user interaction and administration.

1.  Database Schema Design (Users & Roles):
       Activity: Design the database schema for Users (fields: id, username/email, passwordhash, role, createdat, updatedat, isactive) and potentially Roles (e.g., member, admin).
       Output: ERD (Entity-Relationship Diagram) or JSON schema definition.

2.  User Model & ORM/ODM Integration:
       Activity: Create a Node.js model reflecting the user schema. Integrate an ORM (e.g., Sequelize for SQL, Mongoose for MongoDB) for database interactions.
       Output: User model and database connection established in the backend.

3.  Authentication System Development:
       Activity:
           User Registration: Endpoint to create new users. Imperative: Password hashing (e.g., using bcrypt).
           User Login: Endpoint to authenticate users. Upon successful login, generate a secure token (e.g., JSON Web Tokens - JWT) and send it to the client.
           Password Reset/Change: Endpoints for secure password management.
           Middleware: Implement middleware for token verification to protect restricted routes.
       Considerations: JWTs are stateless and widely used for API authentication. Ensure proper token storage (HTTP-only cookies are recommended for security).
       Output: /auth/register, /auth/login API endpoints, authentication middleware.

4.  User Management API (Admin Functionality):
       Activity: Develop CRUD (Create, Read, Update, Delete) endpoints for user management. These should be protected by authorization middleware, ensuring only admin roles can access them.
       Endpoints: /users, /users/:id.
       Output: /users API endpoints with role-based access control.

5.  Restricted Content API:
       Activity: Create an example endpoint that serves "members-only" content, protected by the authentication middleware.
       Output: /restricted-content API endpoint.

6.  Error Handling & Validation:
       Activity: Implement robust error handling for API endpoints and comprehensive input validation (e.g., using joi or express-validator).
       Output: Centralized error handling and input validation logic.

Phase III: Frontend Development (Vue.js & Tailwind CSS - User Interface & Interaction)

This phase focuses on building the intuitive and responsive user interface.

1.  Routing (Vue Router):
       Activity: Set up Vue Router to manage navigation, including public routes (login, register) and private/protected routes (dashboard, member area, user management).
       Output: Configured Vue Router with route guards for protected areas.

2.  Global State Management (Vuex/Pinia):
       Activity: Integrate a state management library (Pinia is generally simpler for new projects, Vuex is mature). This will manage user authentication status, user data, and other global application state.
       Output: Store for authentication status (isLoggedIn, user, token).

3.  Core Component Development (Tailwind CSS Styling):
       Activity:
           Layout Components: Navbar, Footer, Sidebar (for admin).
           Authentication Components: LoginForm, RegisterForm, PasswordResetForm.
           Dashboard/Member Area: Components for the main member content.
           User Management Components (Admin): UserList, UserDetail, UserEditForm.
       Styling: Apply Tailwind CSS classes for responsive, utility-first styling.
       Output: Modular Vue components with consistent styling.

4.  API Integration & Data Flow:
       Activity: Connect frontend components to the backend API. Use axios or the native fetch API to make HTTP requests for authentication, fetching user data, and performing CRUD operations.
       Considerations: Implement proper error display for API responses (e.g., "Invalid credentials").
       Output: Functional forms and data display, interacting with the backend.

5.  User Experience (UX) Enhancements:
       Activity: Implement form validation (client-side), loading indicators, and informative feedback messages to the user.
       Output: Improved user feedback and interaction patterns.

Phase IV: Integration, Testing & Deployment Readiness

The final phase for a stable and deployable application.

1.  Frontend-Backend Integration Testing:
       Activity: Thoroughly test the interaction between the frontend and backend. Verify authentication flows, data persistence, and role-based access.
       Output: Identified and resolved integration issues.

2.  Security Audit & Hardening:
       Activity: Review for common web vulnerabilities (XSS, CSRF, insecure direct object references, sensitive data exposure). Configure CORS properly. Ensure secure storage of tokens.
       Considerations: Implement Helmet.js on the Node.js backend for security headers.
       Output: Hardened application with security best practices applied.

3.  Automated Testing:
       Activity: Implement unit tests for critical backend logic (authentication, user services) and frontend components. Consider E2E (End-to-End) tests with tools like Cypress or Playwright for critical user journeys.
       Output: Test suites demonstrating core functionality.

4.  Environment Configuration:
       Activity: Set up environment variables for development, staging, and production (e.g., database URLs, JWT secrets, API base URLs).
       Output: .env files and configuration loading logic.

5.  Deployment Strategy:
       Activity: Plan the deployment process. Node.js backend can be deployed to services like Heroku, AWS EC2, DigitalOcean. Vue.js frontend can be deployed to Vercel, Netlify, or as static assets on a CDN.
       Considerations: CI/CD pipeline for automated deployments (e.g., GitHub Actions, GitLab CI/CD).
       Output: Defined deployment strategy and initial scripts.
`
